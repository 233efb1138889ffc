package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"entitystore.dev/entity"
)

// publicationStateKey is the S3 object metadata key the publication state
// is stored under; S3 lower-cases metadata keys and exposes them back as
// x-amz-meta-publication_state.
const publicationStateKey = "publication_state"

// sharedHTTPClient pools connections across every S3 operation this
// process issues, rather than dialing fresh per request.
var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// S3Store is the production Store, backed by an S3-compatible bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Store wraps an existing S3 client. Callers configure region,
// credentials, and endpoint resolution via aws-sdk-go-v2's config package
// before constructing the client; this keeps the store itself agnostic to
// AWS vs. a self-hosted S3-compatible deployment.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// EnsureBucket creates the backing bucket if it does not already exist.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable, for GET /health.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Store) WritePending(ctx context.Context, externalID string, rev *entity.Revision) error {
	body, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("marshal revision: %w", err)
	}

	key := Key(externalID, rev.RevisionID)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
		Metadata: map[string]string{
			publicationStateKey: string(entity.Pending),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) MarkPublished(ctx context.Context, externalID string, revisionID int64) error {
	key := Key(externalID, revisionID)

	// S3 has no metadata-only update; a copy-onto-self with a metadata
	// replace directive is the standard way to flip object metadata
	// without re-uploading the body.
	copySource := s.bucket + "/" + key
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(copySource),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata: map[string]string{
			publicationStateKey: string(entity.Published),
		},
	})
	if err != nil {
		return fmt.Errorf("mark published %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, externalID string, revisionID int64) (*entity.Revision, error) {
	key := Key(externalID, revisionID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, entity.NotFound(fmt.Sprintf("revision blob %s not found", key))
		}
		return nil, entity.IOError(fmt.Sprintf("get %s", key), err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, entity.IOError(fmt.Sprintf("read body %s", key), err)
	}

	var rev entity.Revision
	if err := json.Unmarshal(body, &rev); err != nil {
		return nil, fmt.Errorf("unmarshal revision %s: %w", key, err)
	}
	return &rev, nil
}

// ListPendingOlderThan pages through the bucket and returns every object
// still tagged publication_state=pending whose last modification predates
// cutoff. HeadObject is required per key since ListObjectsV2 does not
// return user metadata.
func (s *S3Store) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]PendingObject, error) {
	var pending []PendingObject

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.After(cutoff) {
				continue
			}
			externalID, revisionID, ok := ParseKey(aws.ToString(obj.Key))
			if !ok {
				continue
			}
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				continue
			}
			if head.Metadata[publicationStateKey] != string(entity.Pending) {
				continue
			}
			pending = append(pending, PendingObject{
				ExternalID:   externalID,
				RevisionID:   revisionID,
				LastModified: *obj.LastModified,
			})
		}
	}
	return pending, nil
}

// Delete removes the blob for externalID/revisionID outright. Only the
// orphan reaper calls this; the write pipeline never deletes a blob it
// has written.
func (s *S3Store) Delete(ctx context.Context, externalID string, revisionID int64) error {
	key := Key(externalID, revisionID)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
