package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"market_briefing/internal/logger"
)

const stateVersion = "1.1"

// RunState records when each scheduled job last completed successfully.
type RunState struct {
	Version  string               `json:"version"`
	LastRuns map[string]time.Time `json:"last_runs"`
}

// StateFile persists RunState as JSON with atomic replace-on-write.
type StateFile struct {
	mu   sync.Mutex
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the state, creating a template file when none exists.
func (s *StateFile) Load() (RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *StateFile) load() (RunState, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		// First start: write an empty state right away so the next load finds it.
		logger.Infof("State file %s missing, generating template...", s.path)
		st := RunState{Version: stateVersion, LastRuns: map[string]time.Time{}}
		return st, s.save(st)
	}
	if err != nil {
		return RunState{}, err
	}

	var st RunState
	if err := json.Unmarshal(b, &st); err != nil {
		return RunState{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if migrateState(&st) {
		logger.Infof("State migrated to version %s. Saving...", st.Version)
		if err := s.save(st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// migrateState reports whether the state changed and needs saving.
func migrateState(st *RunState) bool {
	updated := false
	// 1.0 files predate per-job markers.
	if st.Version < "1.1" {
		if st.LastRuns == nil {
			st.LastRuns = map[string]time.Time{}
		}
		st.Version = "1.1"
		updated = true
	}
	if st.LastRuns == nil {
		st.LastRuns = map[string]time.Time{}
		updated = true
	}
	return updated
}

// LastRun returns the last successful completion of job.
func (s *StateFile) LastRun(job string) (time.Time, bool, error) {
	st, err := s.Load()
	if err != nil {
		return time.Time{}, false, err
	}
	t, ok := st.LastRuns[job]
	return t, ok, nil
}

// MarkRun records a successful completion of job at at.
func (s *StateFile) MarkRun(job string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	st.LastRuns[job] = at
	return s.save(st)
}

// save writes the state using an atomic write pattern.
// 1. Write to a temporary file.
// 2. Sync to ensure data is on disk.
// 3. Rename the temporary file over the destination.
// A crash at any point leaves either the old file or the new one, never a torn write.
func (s *StateFile) save(st RunState) error {
	// Indented so the file stays readable when inspected by hand.
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Same directory as the destination: rename is only atomic within one filesystem.
	tmpFile := s.path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	// Flush to disk before the rename, otherwise a power loss can leave an empty file in place.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	// Closed before renaming; Windows refuses to rename an open file.
	f.Close()

	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
