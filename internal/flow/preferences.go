package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Branding customises how reports are presented to the prospect.
type Branding struct {
	FirmName     string `yaml:"firmName,omitempty"`
	PrimaryColor string `yaml:"primaryColor,omitempty"`
	LogoURL      string `yaml:"logoUrl,omitempty"`
}

// Preferences are the client-held settings that outlive a wizard run.
type Preferences struct {
	Language     string   `yaml:"language,omitempty"`
	CountryCode  string   `yaml:"countryCode,omitempty"`
	CurrencyCode string   `yaml:"currencyCode,omitempty"`
	Branding     Branding `yaml:"branding,omitempty"`
}

// DefaultPreferences is used when nothing has been saved yet.
func DefaultPreferences() Preferences {
	return Preferences{Language: "en", CountryCode: "US", CurrencyCode: "USD"}
}

// PreferenceStore loads and saves preferences.
type PreferenceStore interface {
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

// FilePreferences keeps preferences in a YAML file. A missing file loads
// as the defaults.
type FilePreferences struct {
	path string
	mu   sync.Mutex
}

func NewFilePreferences(path string) *FilePreferences {
	return &FilePreferences{path: path}
}

func (f *FilePreferences) Load(_ context.Context) (Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	p := DefaultPreferences()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("parse preferences %s: %w", f.path, err)
	}
	return p, nil
}

// Save writes the file atomically through a temp file in the same directory.
func (f *FilePreferences) Save(_ context.Context, p Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// MemoryPreferences keeps preferences in memory.
type MemoryPreferences struct {
	mu    sync.Mutex
	prefs Preferences
	saved bool
}

func NewMemoryPreferences(initial Preferences) *MemoryPreferences {
	return &MemoryPreferences{prefs: initial, saved: true}
}

func (m *MemoryPreferences) Load(context.Context) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return DefaultPreferences(), nil
	}
	return m.prefs, nil
}

func (m *MemoryPreferences) Save(_ context.Context, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs, m.saved = p, true
	return nil
}
