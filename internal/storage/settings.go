package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

// SettingsKey names the persisted settings entry in every backend.
const SettingsKey = "aetherio_settings"

var (
	ErrSettingsNotFound  = errors.New("settings not found")
	ErrSettingsMalformed = errors.New("settings malformed")
)

// DecodeSettings parses a persisted settings value. Missing fields keep
// their defaults. A malformed value yields the defaults together with
// ErrSettingsMalformed.
func DecodeSettings(raw []byte) (data.Settings, error) {
	var patch data.SettingsPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return data.DefaultSettings(), fmt.Errorf("%w: %v", ErrSettingsMalformed, err)
	}
	return patch.Apply(data.DefaultSettings()), nil
}

func EncodeSettings(s data.Settings) ([]byte, error) {
	return json.Marshal(s)
}
