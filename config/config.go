// Package config persists the user's mode and feature-flag choices between
// runs. Values are stored as string key/value pairs with stable keys and are
// parsed into a typed record on load; anything missing or malformed falls
// back to defaults rather than failing.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Stable storage keys, shared with the browser client.
const (
	keyMode             = "mirror_mode"
	keyLiveBeta         = "mirror_live_beta"
	keyShowAlternatives = "mirror_show_alternatives"
)

type Prefs struct {
	Mode             string
	LiveBeta         bool
	ShowAlternatives bool
}

func Default() Prefs {
	return Prefs{}
}

// DefaultPath returns the standard prefs location under the user config dir.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "mirror", "prefs.yaml"), nil
}

// Load reads prefs from path. A missing file or unreadable content yields
// defaults, never an error: prefs are best-effort state, not configuration
// the program can refuse to start without.
func Load(path string) Prefs {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	var kv map[string]string
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return Default()
	}
	return parse(kv)
}

// Save writes prefs to path, creating parent directories as needed.
func (p Prefs) Save(path string) error {
	data, err := yaml.Marshal(p.serialize())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func parse(kv map[string]string) Prefs {
	return Prefs{
		Mode:             kv[keyMode],
		LiveBeta:         parseBool(kv[keyLiveBeta]),
		ShowAlternatives: parseBool(kv[keyShowAlternatives]),
	}
}

func (p Prefs) serialize() map[string]string {
	return map[string]string{
		keyMode:             p.Mode,
		keyLiveBeta:         formatBool(p.LiveBeta),
		keyShowAlternatives: formatBool(p.ShowAlternatives),
	}
}

// parseBool accepts only the literal "true"; every other value, including
// garbage, means false.
func parseBool(s string) bool {
	return s == "true"
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
