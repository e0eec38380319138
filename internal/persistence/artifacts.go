// Package persistence contains the file hand-off between aggregation and
// prompt formatting, plus the ledger implementations in its subpackages.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"example.com/runcoach/internal/domain"
)

// ArtifactStore writes and reads the normalized activities and summary
// statistics produced by one pipeline run.
type ArtifactStore struct {
	ActivityPath string
	SummaryPath  string

	mu   sync.Mutex
	lock *flock.Flock
}

// NewArtifactStore constructs an ArtifactStore. Handoffs are serialized
// through a lock file next to the activity data, which also covers other
// processes sharing the same paths.
func NewArtifactStore(activityPath, summaryPath string) *ArtifactStore {
	return &ArtifactStore{
		ActivityPath: activityPath,
		SummaryPath:  summaryPath,
		lock:         flock.New(activityPath + ".lock"),
	}
}

// Handoff writes both collections and reads them back as one critical
// section, so the returned pair is always the one this call wrote.
func (s *ArtifactStore) Handoff(normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) ([]domain.NormalizedActivity, []domain.SummaryStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.ActivityPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create artifact directory: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return nil, nil, fmt.Errorf("lock artifacts: %w", err)
	}
	defer s.lock.Unlock()

	if err := s.Write(normalized, stats); err != nil {
		return nil, nil, err
	}
	return s.Read()
}

// Write serialises both collections as indented JSON arrays. It takes no
// lock; pipeline runs go through Handoff.
func (s *ArtifactStore) Write(normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) error {
	if normalized == nil {
		normalized = []domain.NormalizedActivity{}
	}
	if stats == nil {
		stats = []domain.SummaryStatistics{}
	}
	if err := writeJSONFile(s.ActivityPath, normalized); err != nil {
		return fmt.Errorf("write activity data: %w", err)
	}
	if err := writeJSONFile(s.SummaryPath, stats); err != nil {
		return fmt.Errorf("write summary statistics: %w", err)
	}
	return nil
}

// Read loads the collections written by the last Write.
func (s *ArtifactStore) Read() ([]domain.NormalizedActivity, []domain.SummaryStatistics, error) {
	var normalized []domain.NormalizedActivity
	if err := readJSONFile(s.ActivityPath, &normalized); err != nil {
		return nil, nil, fmt.Errorf("read activity data: %w", err)
	}
	var stats []domain.SummaryStatistics
	if err := readJSONFile(s.SummaryPath, &stats); err != nil {
		return nil, nil, fmt.Errorf("read summary statistics: %w", err)
	}
	return normalized, stats, nil
}

// writeJSONFile replaces path atomically so a concurrent reader never sees a
// half-written file.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
