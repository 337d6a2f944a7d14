package voiceprofile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"corpusd/internal/logging"
)

// ErrNotFound is returned when the requested profile name has no matching file.
var ErrNotFound = errors.New("voiceprofile: profile not found")

// DefaultThreshold is the acceptance threshold applied when a profile file
// does not carry one.
const DefaultThreshold = 0.62

// Profile is a persisted fingerprint of the target speaker. It is produced by
// an external enrollment tool; this package only reads it.
type Profile struct {
	Name      string          `json:"name"`
	Centroid  []float32       `json:"centroid"`
	Threshold float64         `json:"threshold"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Store is a read-only, in-memory snapshot of every profile found under a
// directory at load time. It is shared across all workers without locking:
// once loaded, it is never mutated.
type Store struct {
	dir      string
	profiles map[string]Profile
}

// Load reads every *.json file directly under dir and returns a Store keyed
// by profile name. A missing directory yields an empty Store rather than an
// error, since voice identification can be skipped entirely via config.
func Load(dir string, logger *slog.Logger) (*Store, error) {
	logger = logging.NewComponentLogger(logger, "voiceprofile")

	s := &Store{dir: dir, profiles: make(map[string]Profile)}
	if dir == "" {
		return s, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("voice profile directory does not exist",
				logging.String(logging.FieldEventType, "voiceprofile_dir_missing"),
				logging.String("dir", dir))
			return s, nil
		}
		return nil, fmt.Errorf("voiceprofile: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		profile, err := loadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable voice profile",
				logging.String(logging.FieldEventType, "voiceprofile_load_failed"),
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		s.profiles[profile.Name] = profile
	}

	logger.Info("loaded voice profiles",
		logging.Int("count", len(s.profiles)),
		logging.String("dir", dir))
	return s, nil
}

func loadFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return Profile{}, fmt.Errorf("%s: missing name", path)
	}
	if len(p.Centroid) == 0 {
		return Profile{}, fmt.Errorf("%s: empty centroid", path)
	}
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	return p, nil
}

// Get returns the named profile, or ErrNotFound.
func (s *Store) Get(name string) (Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Names returns every loaded profile name, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many profiles were loaded.
func (s *Store) Len() int { return len(s.profiles) }
