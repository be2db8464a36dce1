package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wizardin/chat-server/models"
)

// Storage keys for locally persisted client state. Fixed identifiers: other
// tooling reads the same files.
const (
	profileKey  = "wizardin_user"
	settingsKey = "wizardin_settings"
)

// Settings are client-local UI preferences. They never reach the server.
type Settings struct {
	Notifications bool `json:"notifications"`
	Sounds        bool `json:"sounds"`
}

// ProfileStore persists the last-used profile and settings under a directory,
// one JSON file per key. Loading a saved profile lets the UI skip the join
// prompt.
type ProfileStore struct {
	dir string
}

// NewProfileStore creates a store rooted at dir, creating it if needed.
func NewProfileStore(dir string) (*ProfileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}
	return &ProfileStore{dir: dir}, nil
}

// SaveProfile records the last-used join profile.
func (p *ProfileStore) SaveProfile(profile models.JoinRequest) error {
	return p.write(profileKey, profile)
}

// LoadProfile returns the saved profile, or ok=false if none exists.
func (p *ProfileStore) LoadProfile() (models.JoinRequest, bool, error) {
	var profile models.JoinRequest
	ok, err := p.read(profileKey, &profile)
	return profile, ok, err
}

// ClearProfile forgets the saved profile (e.g. after a corrupt read).
func (p *ProfileStore) ClearProfile() error {
	err := os.Remove(p.path(profileKey))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// SaveSettings records the UI preferences.
func (p *ProfileStore) SaveSettings(settings Settings) error {
	return p.write(settingsKey, settings)
}

// LoadSettings returns the saved settings, or ok=false if none exist.
func (p *ProfileStore) LoadSettings() (Settings, bool, error) {
	var settings Settings
	ok, err := p.read(settingsKey, &settings)
	return settings, ok, err
}

func (p *ProfileStore) path(key string) string {
	return filepath.Join(p.dir, key+".json")
}

func (p *ProfileStore) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := os.WriteFile(p.path(key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (p *ProfileStore) read(key string, v any) (bool, error) {
	data, err := os.ReadFile(p.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return true, nil
}
