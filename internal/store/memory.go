package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agri-esg/internal/model"
)

// MemoryStore keeps runs, scores and cached results in process. It backs the
// "memory" driver and tests that do not need a database.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]model.Run
	scores map[string][]model.ScoredRecord
	cache  map[string]cacheEntry
	now    func() time.Time
}

type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]model.Run),
		scores: make(map[string][]model.ScoredRecord),
		cache:  make(map[string]cacheEntry),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateRun(_ context.Context, run model.Run) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = uuid.New().String()
	run.Status = model.RunStatusRunning
	run.CreatedAt = s.now()
	run.UpdatedAt = run.CreatedAt
	s.runs[run.ID] = run
	return &run, nil
}

func (s *MemoryStore) CompleteRun(_ context.Context, runID string, result *model.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return eris.Wrapf(ErrRunNotFound, "memory: complete run %s", runID)
	}
	if result != nil {
		res := *result
		run.Result = &res
	}
	run.Status = finalStatus(result)
	run.UpdatedAt = s.now()
	s.runs[runID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, eris.Wrapf(ErrRunNotFound, "memory: get run %s", runID)
	}
	return &run, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []model.Run
	for _, r := range s.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Policy != "" && r.Policy != filter.Policy {
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SaveScores(_ context.Context, runID string, scored []model.ScoredRecord) error {
	if len(scored) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := make(map[string]model.ScoredRecord, len(s.scores[runID])+len(scored))
	for _, r := range s.scores[runID] {
		byKey[r.Key.String()] = r
	}
	for _, r := range scored {
		byKey[r.Key.String()] = r
	}
	out := make([]model.ScoredRecord, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	s.scores[runID] = out
	return nil
}

func (s *MemoryStore) GetScores(_ context.Context, runID string) ([]model.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ScoredRecord(nil), s.scores[runID]...), nil
}

func (s *MemoryStore) GetCachedResult(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cache[key]
	if !ok || !e.expiresAt.After(s.now()) {
		return nil, nil
	}
	return append([]byte(nil), e.payload...), nil
}

func (s *MemoryStore) SetCachedResult(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{
		payload:   append([]byte(nil), payload...),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.cache {
		if !e.expiresAt.After(now) {
			delete(s.cache, k)
			n++
		}
	}
	return n, nil
}
