// Package blobreaper implements the orphan blob reaper spec.md §4.E
// "Failure recovery" allows as an out-of-core cleanup pass: a revision
// blob can be written by WritePending and then never referenced by any
// metadata row if the process crashes between steps 8 and 9 of the write
// algorithm. The reaper lists long-pending blobs, confirms against the
// Metadata Index that no revision history entry ever claimed them, and
// deletes the orphan.
package blobreaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"entitystore.dev/blobstore"
	"entitystore.dev/metadata"
)

// Resolver is the subset of the Metadata Index / ID Registry the reaper
// needs to decide whether a pending blob was ever claimed.
type Resolver interface {
	Resolve(ctx context.Context, externalID string) (internalID uint64, ok bool, err error)
	GetHistory(ctx context.Context, internalID uint64) ([]metadata.HistoryEntry, error)
}

// Sweeper runs one reaping pass over a blobstore.Reaper.
type Sweeper struct {
	Blobs       blobstore.Reaper
	Meta        Resolver
	GracePeriod time.Duration
	Logger      *logrus.Logger
}

// Result tallies the outcome of one Sweep call.
type Result struct {
	Considered int
	Deleted    int
	Kept       int
}

// Sweep lists every blob still pending past s.GracePeriod and deletes the
// ones no revision history entry references.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var result Result

	cutoff := time.Now().Add(-s.GracePeriod)
	candidates, err := s.Blobs.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}

	for _, candidate := range candidates {
		result.Considered++

		orphan, err := s.isOrphan(ctx, candidate.ExternalID, candidate.RevisionID)
		if err != nil {
			s.logf(logrus.Fields{"external_id": candidate.ExternalID, "revision_id": candidate.RevisionID}, err, "check orphan status")
			continue
		}
		if !orphan {
			result.Kept++
			continue
		}

		if err := s.Blobs.Delete(ctx, candidate.ExternalID, candidate.RevisionID); err != nil {
			s.logf(logrus.Fields{"external_id": candidate.ExternalID, "revision_id": candidate.RevisionID}, err, "delete orphan blob")
			continue
		}
		result.Deleted++
	}

	return result, nil
}

// isOrphan reports whether revisionID for externalID never made it into
// any revision-history row, meaning the write pipeline crashed before
// step 9 ever ran for it.
func (s *Sweeper) isOrphan(ctx context.Context, externalID string, revisionID int64) (bool, error) {
	internalID, ok, err := s.Meta.Resolve(ctx, externalID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	history, err := s.Meta.GetHistory(ctx, internalID)
	if err != nil {
		return false, err
	}
	for _, entry := range history {
		if entry.RevisionID == revisionID {
			return false, nil
		}
	}
	return true, nil
}

func (s *Sweeper) logf(fields logrus.Fields, err error, msg string) {
	if s.Logger == nil {
		return
	}
	s.Logger.WithFields(fields).WithError(err).Warn(msg)
}
