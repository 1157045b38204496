package simulation

import "time"

// Tariff in currency per kWh. Peak covers 18:00 through 22:59.
const (
	PeakPrice     = 10.0
	OffPeakPrice  = 6.0
	PeakStartHour = 18
	PeakEndHour   = 22
)

// TimeMultiplier is how many simulated minutes pass per real second.
const TimeMultiplier = 60

func IsPeakHour(hour int) bool {
	return hour >= PeakStartHour && hour <= PeakEndHour
}

// Rate returns the price per kWh for the given hour of day.
func Rate(hour int) float64 {
	if IsPeakHour(hour) {
		return PeakPrice
	}
	return OffPeakPrice
}

// CostIncrement is the displayed cost added for drawing globalWatts over a
// real elapsed duration at the given hour. The /100 scaling keeps the ticker
// moving in small visible steps.
func CostIncrement(globalWatts float64, elapsed time.Duration, hour int) float64 {
	if elapsed <= 0 || globalWatts <= 0 {
		return 0
	}
	simulatedHours := elapsed.Hours() * TimeMultiplier
	return globalWatts / 1000 * simulatedHours * Rate(hour) / 100
}
