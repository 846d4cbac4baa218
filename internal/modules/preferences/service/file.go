package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"market_terminal/internal/models"
)

// File keeps preferences of all profiles in one JSON document. Writes go
// through a temp file and a rename so a crash never leaves a torn file.
type File struct {
	path    string
	profile string

	mu       sync.Mutex
	profiles map[string]models.Preferences
	loaded   bool
}

func NewFile(path, profile string) *File {
	return &File{
		path:     path,
		profile:  profile,
		profiles: make(map[string]models.Preferences),
	}
}

func (f *File) Load(ctx context.Context) (models.Preferences, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadLocked(); err != nil {
		return models.Preferences{}, false, err
	}
	p, ok := f.profiles[f.profile]
	return p, ok, nil
}

func (f *File) Save(ctx context.Context, p models.Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.loadLocked(); err != nil {
		return err
	}
	f.profiles[f.profile] = p
	return f.saveLocked()
}

type fileSnapshot struct {
	UpdatedAt time.Time                     `json:"updated_at"`
	Profiles  map[string]models.Preferences `json:"profiles"`
}

func (f *File) loadLocked() error {
	if f.loaded {
		return nil
	}

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.loaded = true
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	var snap fileSnapshot
	if err := sonic.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode %s: %w", f.path, err)
	}
	for name, p := range snap.Profiles {
		f.profiles[name] = p
	}

	f.loaded = true
	return nil
}

func (f *File) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	b, err := sonic.ConfigStd.MarshalIndent(&fileSnapshot{
		UpdatedAt: time.Now(),
		Profiles:  f.profiles,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
