package repository

import (
	"path/filepath"
	"testing"

	"secops-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(DriverSQLite, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// archiveAll records every transition of id, the way the runner does
func archiveAll(t *testing.T, archive *JobArchive, s *JobStore, id string) {
	t.Helper()
	job, err := s.Get(id)
	require.NoError(t, err)
	events, err := s.Events(id)
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, archive.RecordTransition(t.Context(), job, ev))
	}
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	_, err := NewDB("mysql", "root@/secops")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM jobs WHERE id = $1 AND status = $2", pg.rebind("SELECT * FROM jobs WHERE id = ? AND status = ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestJobArchiveRoundTrip(t *testing.T) {
	archive := NewJobArchive(newTestDB(t))
	s := newTestStore(t, 0)

	job, err := s.Create(models.JobRequest{
		AgentKind:   models.AgentIncidentResponse,
		Parameters:  models.IncidentResponseParams{Target: "10.0.0.5", Action: models.ContainmentBlock},
		SubmittedBy: "analyst",
	})
	require.NoError(t, err)
	_, err = s.Update(job.ID, Mutation{Status: models.JobStatusRunning, Reason: "execution_started"})
	require.NoError(t, err)
	_, err = s.Update(job.ID, Mutation{
		Status: models.JobStatusSucceeded,
		Result: models.JobResult{"status": "containment_started", "target": "10.0.0.5"},
		Reason: "execution_succeeded",
	})
	require.NoError(t, err)
	archiveAll(t, archive, s, job.ID)

	want, err := s.Get(job.ID)
	require.NoError(t, err)

	got, err := archive.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, models.JobStatusSucceeded, got.Status)
	assert.Equal(t, "analyst", got.Request.SubmittedBy)
	assert.Equal(t, want.Request.Parameters, got.Request.Parameters)
	assert.Equal(t, "containment_started", got.Result["status"])
	assert.True(t, want.Request.SubmittedAt.Equal(got.Request.SubmittedAt))
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, want.FinishedAt.Equal(*got.FinishedAt))

	events, err := archive.GetJobEvents(t.Context(), job.ID, 100)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.JobStatusQueued, events[0].ToStatus)
	assert.Nil(t, events[0].FromStatus)
	require.NotNil(t, events[2].FromStatus)
	assert.Equal(t, models.JobStatusRunning, *events[2].FromStatus)
	assert.Equal(t, "execution_succeeded", events[2].Reason)

	limited, err := archive.GetJobEvents(t.Context(), job.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestJobArchiveIdempotentEvents(t *testing.T) {
	archive := NewJobArchive(newTestDB(t))
	s := newTestStore(t, 0)

	job, err := s.Create(reconRequest())
	require.NoError(t, err)
	archiveAll(t, archive, s, job.ID)
	archiveAll(t, archive, s, job.ID)

	events, err := archive.GetJobEvents(t.Context(), job.ID, 100)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestJobArchiveNotFound(t *testing.T) {
	archive := NewJobArchive(newTestDB(t))

	_, err := archive.GetJob(t.Context(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestArtifactRepository(t *testing.T) {
	repo := NewArtifactRepository(newTestDB(t))

	_, err := repo.CreateArtifact(t.Context(), "job-1", models.ArtifactTypeEvidence, "file:///tmp/e.json", map[string]interface{}{"size": 12})
	require.NoError(t, err)
	_, err = repo.CreateArtifact(t.Context(), "job-1", models.ArtifactTypeReport, "file:///tmp/r.md", nil)
	require.NoError(t, err)
	_, err = repo.CreateArtifact(t.Context(), "job-2", models.ArtifactTypeEvidence, "file:///tmp/other.json", nil)
	require.NoError(t, err)

	all, err := repo.GetJobArtifacts(t.Context(), "job-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.ArtifactTypeEvidence, all[0].Type)
	assert.Equal(t, float64(12), all[0].Meta["size"])

	reports := models.ArtifactTypeReport
	only, err := repo.GetJobArtifacts(t.Context(), "job-1", &reports)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "file:///tmp/r.md", only[0].URI)
}
