package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"secops-orchestrator/core/models"

	"github.com/google/uuid"
)

// Mutation describes a status transition applied by JobStore.Update
type Mutation struct {
	Status      models.JobStatus
	Result      models.JobResult // kept only when Status is succeeded
	ErrorDetail string           // kept only for failed, timed_out and cancelled
	Reason      string           // recorded on the transition event
}

// Filter narrows JobStore.List
type Filter struct {
	Agent  models.AgentKind
	Status models.JobStatus
	Limit  int
}

// JobStore is the in-process store of job records with bounded retention.
// The map is guarded by mu; each record has its own lock so transitions on
// distinct jobs do not serialise behind each other.
type JobStore struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string // creation order, may still hold evicted ids
	evictable  *terminalQueue
	active     map[models.AgentKind]int
	maxRecords int
	seq        uint64
	now        func() time.Time
	newID      func() string
}

type entry struct {
	mu     sync.Mutex
	seq    uint64
	record models.JobRecord
	events []models.JobEvent
}

// StoreOption configures a JobStore
type StoreOption func(*JobStore)

// WithClock overrides the store's time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *JobStore) { s.now = now }
}

// WithIDGenerator overrides job id generation
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *JobStore) { s.newID = gen }
}

// NewJobStore creates a store holding at most maxRecords records (0 = unbounded)
func NewJobStore(maxRecords int, opts ...StoreOption) *JobStore {
	s := &JobStore{
		entries:    make(map[string]*entry),
		evictable:  newTerminalQueue(),
		active:     make(map[models.AgentKind]int),
		maxRecords: maxRecords,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new queued record for req. At capacity the oldest terminal
// record is evicted; if every record is still active the call fails.
func (s *JobStore) Create(req models.JobRequest) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxRecords > 0 && len(s.entries) >= s.maxRecords {
		if !s.evictOldestTerminal() {
			return nil, fmt.Errorf("%w: %d active records", models.ErrCapacityExceeded, len(s.entries))
		}
	}

	id := s.newID()
	if _, exists := s.entries[id]; exists {
		return nil, fmt.Errorf("duplicate job id %s", id)
	}

	now := s.now()
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}

	s.seq++
	e := &entry{
		seq: s.seq,
		record: models.JobRecord{
			ID:        id,
			Request:   req,
			Status:    models.JobStatusQueued,
			UpdatedAt: now,
		},
	}
	e.events = append(e.events, models.JobEvent{
		JobID:    id,
		Seq:      1,
		At:       now,
		ToStatus: models.JobStatusQueued,
		Reason:   "job_created",
	})

	s.entries[id] = e
	s.order = append(s.order, id)
	s.active[req.AgentKind]++

	return e.record.Clone(), nil
}

// evictOldestTerminal drops the oldest terminal record. Caller holds mu.
func (s *JobStore) evictOldestTerminal() bool {
	for {
		id, ok := s.evictable.PopOldest()
		if !ok {
			return false
		}
		if _, exists := s.entries[id]; exists {
			delete(s.entries, id)
			s.compactOrder()
			return true
		}
	}
}

// compactOrder drops evicted ids once they make up half the order slice
func (s *JobStore) compactOrder() {
	if len(s.order) < 2*len(s.entries)+64 {
		return
	}
	kept := make([]string, 0, len(s.entries))
	for _, id := range s.order {
		if _, ok := s.entries[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// Get returns a copy of the record with the given id
func (s *JobStore) Get(id string) (*models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone(), nil
}

// Update applies a status transition atomically and returns the new record
func (s *JobStore) Update(id string, mut Mutation) (*models.JobRecord, error) {
	// Terminal transitions touch the eviction heap and active counts.
	terminal := mut.Status.IsTerminal()
	if terminal {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.record.Status
	if !from.CanTransitionTo(mut.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, mut.Status)
	}

	now := s.now()
	e.record.Status = mut.Status
	e.record.UpdatedAt = now

	switch {
	case mut.Status == models.JobStatusRunning:
		e.record.StartedAt = &now
	case mut.Status == models.JobStatusSucceeded:
		e.record.FinishedAt = &now
		e.record.Result = mut.Result
	case terminal:
		e.record.FinishedAt = &now
		e.record.ErrorDetail = mut.ErrorDetail
	}

	e.events = append(e.events, models.JobEvent{
		JobID:      id,
		Seq:        len(e.events) + 1,
		At:         now,
		FromStatus: &from,
		ToStatus:   mut.Status,
		Reason:     mut.Reason,
	})

	if terminal {
		s.evictable.Add(id, e.record.Request.SubmittedAt, e.seq)
		kind := e.record.Request.AgentKind
		if s.active[kind] > 0 {
			s.active[kind]--
		}
	}

	return e.record.Clone(), nil
}

// Events returns the transition journal of a record, oldest first
func (s *JobStore) Events(id string) ([]models.JobEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make([]models.JobEvent, len(e.events))
	copy(events, e.events)
	return events, nil
}

// ListByAgent returns a snapshot of the agent's records ordered by SubmittedAt
func (s *JobStore) ListByAgent(kind models.AgentKind) []*models.JobRecord {
	records := s.snapshot(func(r *models.JobRecord) bool {
		return r.Request.AgentKind == kind
	})
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Request.SubmittedAt.Before(records[j].Request.SubmittedAt)
	})
	return records
}

// List returns records matching the filter, newest first
func (s *JobStore) List(f Filter) []*models.JobRecord {
	records := s.snapshot(func(r *models.JobRecord) bool {
		if f.Agent != "" && r.Request.AgentKind != f.Agent {
			return false
		}
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		return true
	})
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Request.SubmittedAt.After(records[j].Request.SubmittedAt)
	})
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	return records
}

func (s *JobStore) snapshot(match func(*models.JobRecord) bool) []*models.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.JobRecord, 0)
	for _, id := range s.order {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		e.mu.Lock()
		if match(&e.record) {
			records = append(records, e.record.Clone())
		}
		e.mu.Unlock()
	}
	return records
}

// CountActive returns the number of non-terminal records for an agent kind
func (s *JobStore) CountActive(kind models.AgentKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[kind]
}

// Len returns the number of records currently held
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
