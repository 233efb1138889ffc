package blobreaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore.dev/blobstore"
	"entitystore.dev/entity"
	"entitystore.dev/metadata"
)

type fakeResolver struct {
	ids     map[string]uint64
	history map[uint64][]metadata.HistoryEntry
}

func (f *fakeResolver) Resolve(_ context.Context, externalID string) (uint64, bool, error) {
	id, ok := f.ids[externalID]
	return id, ok, nil
}

func (f *fakeResolver) GetHistory(_ context.Context, internalID uint64) ([]metadata.HistoryEntry, error) {
	return f.history[internalID], nil
}

func TestSweepDeletesBlobNeverRegistered(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, blobs.WritePending(ctx, "Q1", &entity.Revision{RevisionID: 1}))
	blobs.BackdateForTest("Q1", 1, time.Now().Add(-time.Hour))

	resolver := &fakeResolver{ids: map[string]uint64{}}
	sweeper := &Sweeper{Blobs: blobs, Meta: resolver, GracePeriod: 10 * time.Minute}

	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Deleted)

	_, err = blobs.Get(ctx, "Q1", 1)
	assert.Error(t, err)
}

func TestSweepKeepsBlobInHistory(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, blobs.WritePending(ctx, "Q1", &entity.Revision{RevisionID: 1}))
	blobs.BackdateForTest("Q1", 1, time.Now().Add(-time.Hour))

	resolver := &fakeResolver{
		ids:     map[string]uint64{"Q1": 42},
		history: map[uint64][]metadata.HistoryEntry{42: {{RevisionID: 1}}},
	}
	sweeper := &Sweeper{Blobs: blobs, Meta: resolver, GracePeriod: 10 * time.Minute}

	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Kept)
	assert.Equal(t, 0, result.Deleted)

	_, err = blobs.Get(ctx, "Q1", 1)
	assert.NoError(t, err)
}

func TestSweepSkipsBlobWithinGracePeriod(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, blobs.WritePending(ctx, "Q1", &entity.Revision{RevisionID: 1}))

	resolver := &fakeResolver{ids: map[string]uint64{}}
	sweeper := &Sweeper{Blobs: blobs, Meta: resolver, GracePeriod: time.Hour}

	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Considered)
}
