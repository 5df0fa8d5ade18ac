// Package store persists the relay configuration (names, saved pattern,
// auto-load flag) as JSON with an atomic rename, so a power loss mid-write
// leaves the previous file intact.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/model"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted config. A missing or corrupt file yields the
// default config; boot never fails on storage problems.
func (s *Store) Load() *model.PersistedConfig {
	file, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to open persisted config, using defaults")
		}
		return model.DefaultPersistedConfig()
	}
	defer file.Close()

	// auto_load is decoded through a pointer so a file missing the key
	// keeps the factory default (enabled) instead of decoding to false.
	var raw struct {
		model.PersistedConfig
		AutoLoad *bool `json:"auto_load"`
	}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Persisted config corrupt, using defaults")
		return model.DefaultPersistedConfig()
	}

	cfg := raw.PersistedConfig
	cfg.AutoLoad = raw.AutoLoad == nil || *raw.AutoLoad
	sanitize(&cfg)
	return &cfg
}

// Save writes the config durably. On failure the previous on-disk content
// is untouched.
func (s *Store) Save(cfg *model.PersistedConfig) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}

// Clear erases only the saved pattern and its timestamp. Names and the
// auto-load flag survive.
func (s *Store) Clear(cfg *model.PersistedConfig) error {
	cfg.Pattern = nil
	cfg.LastSaved = time.Time{}
	return s.Save(cfg)
}

// sanitize repairs partially valid files so a truncated or hand-edited
// config cannot poison the runtime.
func sanitize(cfg *model.PersistedConfig) {
	for i := range cfg.Names {
		if cfg.Names[i] == "" {
			cfg.Names[i] = model.DefaultRelayName(i + 1)
		}
		if len(cfg.Names[i]) > model.MaxNameLen {
			cfg.Names[i] = cfg.Names[i][:model.MaxNameLen]
		}
	}
	if cfg.Pattern != nil && !model.ValidPattern(*cfg.Pattern) {
		log.Warn().Str("pattern", *cfg.Pattern).Msg("Discarding invalid saved pattern")
		cfg.Pattern = nil
	}
}
