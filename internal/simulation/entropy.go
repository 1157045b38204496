package simulation

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Entropy is the randomness the engine draws jitter from. *rand.Rand
// satisfies it; tests pass a scripted sequence.
type Entropy interface {
	Intn(n int) int
	Float64() float64
}

// NewEntropy returns a seeded source. It is not safe for concurrent use; the
// engine only touches it while holding its state lock.
func NewEntropy(seed int64) Entropy {
	return rand.New(rand.NewSource(seed))
}

func defaultEntropy() Entropy {
	return NewEntropy(time.Now().UnixNano())
}

// newAlertID returns a time-ordered unique id.
func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
