package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"secops-orchestrator/core/models"
	"secops-orchestrator/core/repository"
)

// EvidenceStore writes forensics evidence and reports under a directory and
// indexes them as job artifacts. Without an artifact repository the index is
// kept in memory.
type EvidenceStore struct {
	dir          string
	artifactRepo *repository.ArtifactRepository
	now          func() time.Time

	mu     sync.Mutex
	nextID int64
	memory map[string][]models.JobArtifact
}

// NewEvidenceStore creates a new evidence store rooted at dir
func NewEvidenceStore(dir string, artifactRepo *repository.ArtifactRepository) (*EvidenceStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("evidence directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &EvidenceStore{
		dir:          dir,
		artifactRepo: artifactRepo,
		now:          time.Now,
		memory:       make(map[string][]models.JobArtifact),
	}, nil
}

// SaveEvidence stores the attack details of a forensics job as JSON
func (s *EvidenceStore) SaveEvidence(ctx context.Context, jobID string, details map[string]interface{}) (string, error) {
	data, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode evidence: %w", err)
	}
	return s.save(ctx, jobID, models.ArtifactTypeEvidence, "evidence", ".json", data)
}

// SaveReport stores a generated forensics report
func (s *EvidenceStore) SaveReport(ctx context.Context, jobID string, report string) (string, error) {
	return s.save(ctx, jobID, models.ArtifactTypeReport, "report", ".md", []byte(report))
}

func (s *EvidenceStore) save(ctx context.Context, jobID string, artifactType models.ArtifactType, prefix, ext string, data []byte) (string, error) {
	if jobID == "" || filepath.Base(jobID) != jobID {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}

	jobDir := filepath.Join(s.dir, jobID)
	if err := os.MkdirAll(jobDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}

	now := s.now().UTC()
	path := filepath.Join(jobDir, fmt.Sprintf("%s-%d%s", prefix, now.UnixNano(), ext))
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", prefix, err)
	}

	sum := sha256.Sum256(data)
	uri := "file://" + filepath.ToSlash(path)
	meta := map[string]interface{}{
		"sha256": hex.EncodeToString(sum[:]),
		"size":   len(data),
	}

	if s.artifactRepo != nil {
		if _, err := s.artifactRepo.CreateArtifact(ctx, jobID, artifactType, uri, meta); err != nil {
			return "", fmt.Errorf("failed to index artifact: %w", err)
		}
		return uri, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.memory[jobID] = append(s.memory[jobID], models.JobArtifact{
		ID:        s.nextID,
		JobID:     jobID,
		Type:      artifactType,
		URI:       uri,
		CreatedAt: now,
		Meta:      meta,
	})
	return uri, nil
}

// Artifacts lists the artifacts recorded for a job, oldest first
func (s *EvidenceStore) Artifacts(ctx context.Context, jobID string) ([]models.JobArtifact, error) {
	if s.artifactRepo != nil {
		return s.artifactRepo.GetJobArtifacts(ctx, jobID, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobArtifact, len(s.memory[jobID]))
	copy(out, s.memory[jobID])
	return out, nil
}
