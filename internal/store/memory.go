package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/interview-engine/internal/types"
)

// Memory is an in-process Store used by tests and dev mode. It applies the
// same CAS semantics as the Postgres implementation.
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID][]byte
	versions map[uuid.UUID]int64
	gaps     map[uuid.UUID][]byte
	progress map[string][]byte // key: userID + "\x00" + role
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[uuid.UUID][]byte),
		versions: make(map[uuid.UUID]int64),
		gaps:     make(map[uuid.UUID][]byte),
		progress: make(map[string][]byte),
	}
}

// CreateSession inserts a new session.
func (m *Memory) CreateSession(_ context.Context, sess *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.Version = 1
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.sessions[sess.ID] = data
	m.versions[sess.ID] = 1
	return nil
}

// LoadSession returns a deep copy of the session.
func (m *Memory) LoadSession(_ context.Context, id uuid.UUID) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SaveSession writes the session under CAS on the version field.
func (m *Memory) SaveSession(_ context.Context, sess *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.versions[sess.ID]
	if !ok {
		return ErrNotFound
	}
	if current != sess.Version {
		return ErrVersionConflict
	}
	sess.Version++
	data, err := json.Marshal(sess)
	if err != nil {
		sess.Version--
		return err
	}
	m.sessions[sess.ID] = data
	m.versions[sess.ID] = sess.Version
	return nil
}

// UpsertGap inserts or replaces a gap.
func (m *Memory) UpsertGap(_ context.Context, gap *types.SkillGap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(gap)
	if err != nil {
		return err
	}
	m.gaps[gap.ID] = data
	return nil
}

// LoadGap finds the gap for (userID, skill, kind).
func (m *Memory) LoadGap(_ context.Context, userID, skill string, kind types.GapKind) (*types.SkillGap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, data := range m.gaps {
		var gap types.SkillGap
		if err := json.Unmarshal(data, &gap); err != nil {
			return nil, err
		}
		if gap.UserID == userID && strings.EqualFold(gap.Skill, skill) && gap.Kind == kind {
			return &gap, nil
		}
	}
	return nil, ErrNotFound
}

// LoadGapByID returns a deep copy of the gap.
func (m *Memory) LoadGapByID(_ context.Context, id uuid.UUID) (*types.SkillGap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.gaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	var gap types.SkillGap
	if err := json.Unmarshal(data, &gap); err != nil {
		return nil, err
	}
	return &gap, nil
}

// LoadGapsByUser returns the user's gaps, severity descending.
func (m *Memory) LoadGapsByUser(_ context.Context, userID string, status types.GapStatus) ([]*types.SkillGap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.SkillGap
	for _, data := range m.gaps {
		var gap types.SkillGap
		if err := json.Unmarshal(data, &gap); err != nil {
			return nil, err
		}
		if gap.UserID != userID {
			continue
		}
		if status != "" && gap.Status != status {
			continue
		}
		g := gap
		out = append(out, &g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].Skill < out[j].Skill
	})
	return out, nil
}

// UpsertProgress inserts or replaces progress for (user, role).
func (m *Memory) UpsertProgress(_ context.Context, p *types.InterviewProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.progress[p.UserID+"\x00"+p.TargetRole] = data
	return nil
}

// LoadProgress returns progress for (userID, role).
func (m *Memory) LoadProgress(_ context.Context, userID, role string) (*types.InterviewProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.progress[userID+"\x00"+role]
	if !ok {
		return nil, ErrNotFound
	}
	var p types.InterviewProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
