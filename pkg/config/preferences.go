package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

const preferencesFile = "preferences.json"

// Preferences is the voice/language/style triple read at startup and
// written on every change.
type Preferences struct {
	Voice    string             `json:"voice"`
	Language string             `json:"language"`
	Style    core.ResponseStyle `json:"style"`
}

// DefaultPreferences mirrors a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{
		Voice: "Zephyr",
		Style: core.StyleConversational,
	}
}

// LoadPreferences reads preferences from dir, returning defaults when no
// file exists yet.
func LoadPreferences(dir string) (Preferences, error) {
	data, err := os.ReadFile(filepath.Join(dir, preferencesFile))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, core.NewStorageError("read preferences", err)
	}
	prefs := DefaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, core.NewStorageError("decode preferences", err)
	}
	return prefs, nil
}

// SavePreferences writes preferences to dir, creating it when needed.
func SavePreferences(dir string, prefs Preferences) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewStorageError("create config dir", err)
	}
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return core.NewStorageError("encode preferences", err)
	}
	if err := os.WriteFile(filepath.Join(dir, preferencesFile), data, 0o644); err != nil {
		return core.NewStorageError("write preferences", err)
	}
	return nil
}

// LiveConfig converts preferences to a live connection configuration.
func (p Preferences) LiveConfig() core.LiveConfig {
	return core.LiveConfig{
		VoiceName:     p.Voice,
		Language:      p.Language,
		ResponseStyle: p.Style,
	}
}
