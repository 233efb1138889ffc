package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"entitystore.dev/entity"
)

// MemoryStore is an in-memory Store used by tests in place of a real S3
// bucket, mirroring the fake-over-interface pattern the teacher's test
// suite uses for its repository mocks.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

type memoryObject struct {
	body       []byte
	state      entity.PublicationState
	modifiedAt time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) WritePending(_ context.Context, externalID string, rev *entity.Revision) error {
	body, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("marshal revision: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[Key(externalID, rev.RevisionID)] = memoryObject{body: body, state: entity.Pending, modifiedAt: time.Now()}
	return nil
}

func (m *MemoryStore) MarkPublished(_ context.Context, externalID string, revisionID int64) error {
	key := Key(externalID, revisionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return entity.NotFound(fmt.Sprintf("revision blob %s not found", key))
	}
	obj.state = entity.Published
	m.objects[key] = obj
	return nil
}

func (m *MemoryStore) Get(_ context.Context, externalID string, revisionID int64) (*entity.Revision, error) {
	key := Key(externalID, revisionID)

	m.mu.Lock()
	obj, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return nil, entity.NotFound(fmt.Sprintf("revision blob %s not found", key))
	}

	var rev entity.Revision
	if err := json.Unmarshal(obj.body, &rev); err != nil {
		return nil, fmt.Errorf("unmarshal revision %s: %w", key, err)
	}
	return &rev, nil
}

// PublicationState exposes a blob's current state for tests asserting on
// the two-phase write pipeline's intermediate states.
func (m *MemoryStore) PublicationState(externalID string, revisionID int64) (entity.PublicationState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[Key(externalID, revisionID)]
	if !ok {
		return "", false
	}
	return obj.state, true
}

// BackdateForTest rewrites an object's modification time, letting the
// reaper's tests exercise the cutoff window without sleeping.
func (m *MemoryStore) BackdateForTest(externalID string, revisionID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(externalID, revisionID)
	obj, ok := m.objects[key]
	if !ok {
		return
	}
	obj.modifiedAt = at
	m.objects[key] = obj
}

// ListPendingOlderThan implements Reaper for MemoryStore.
func (m *MemoryStore) ListPendingOlderThan(_ context.Context, cutoff time.Time) ([]PendingObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []PendingObject
	for key, obj := range m.objects {
		if obj.state != entity.Pending || obj.modifiedAt.After(cutoff) {
			continue
		}
		externalID, revisionID, ok := ParseKey(key)
		if !ok {
			continue
		}
		pending = append(pending, PendingObject{ExternalID: externalID, RevisionID: revisionID, LastModified: obj.modifiedAt})
	}
	return pending, nil
}

// Delete implements Reaper for MemoryStore.
func (m *MemoryStore) Delete(_ context.Context, externalID string, revisionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, Key(externalID, revisionID))
	return nil
}
