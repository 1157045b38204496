// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command types accepted from dashboard clients.
const (
	CommandTriggerAnomaly    = "trigger_anomaly"
	CommandClearAnomaly      = "clear_anomaly"
	CommandClearAlertHistory = "clear_alert_history"
	CommandToggleAppliance   = "toggle_appliance"
	CommandSaveSettings      = "save_settings"
	CommandTick              = "tick"
)

var ErrUnknownCommand = errors.New("unknown command")

// Command is an inbound control message from a dashboard.
type Command struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	Appliance string `json:"appliance,omitempty"`
	State     *bool  `json:"state,omitempty"`
	SettingsPatch
}

// ParseCommand decodes and sanity-checks a raw command payload.
func ParseCommand(raw []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	cmd.Type = strings.ToLower(strings.TrimSpace(cmd.Type))

	switch cmd.Type {
	case CommandTriggerAnomaly, CommandClearAnomaly, CommandClearAlertHistory, CommandTick:
	case CommandToggleAppliance:
		cmd.Appliance = strings.ToLower(strings.TrimSpace(cmd.Appliance))
		if cmd.Appliance == "" {
			return nil, fmt.Errorf("toggle_appliance: missing appliance")
		}
	case CommandSaveSettings:
		if cmd.SpikeThreshold == nil && cmd.DurationThreshold == nil {
			return nil, fmt.Errorf("save_settings: no fields to update")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return &cmd, nil
}
