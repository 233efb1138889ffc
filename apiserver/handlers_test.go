package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
	"entitystore.dev/pipeline"
)

type fakePipeline struct {
	writeFn          func(ctx context.Context, externalID string, doc entity.Document, req entity.RequestFlags, createdBy string) (*pipeline.WriteResult, error)
	softDeleteFn     func(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error)
	hardDeleteFn     func(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error)
	createRedirectFn func(ctx context.Context, from, to, createdBy string) (*pipeline.WriteResult, error)
	revertRedirectFn func(ctx context.Context, externalID string, targetRevisionID int64) (*pipeline.WriteResult, error)
}

func (f *fakePipeline) Write(ctx context.Context, externalID string, doc entity.Document, req entity.RequestFlags, createdBy string) (*pipeline.WriteResult, error) {
	return f.writeFn(ctx, externalID, doc, req, createdBy)
}
func (f *fakePipeline) SoftDelete(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error) {
	return f.softDeleteFn(ctx, externalID, createdBy)
}
func (f *fakePipeline) HardDelete(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error) {
	return f.hardDeleteFn(ctx, externalID, createdBy)
}
func (f *fakePipeline) CreateRedirect(ctx context.Context, from, to, createdBy string) (*pipeline.WriteResult, error) {
	return f.createRedirectFn(ctx, from, to, createdBy)
}
func (f *fakePipeline) RevertRedirect(ctx context.Context, externalID string, targetRevisionID int64) (*pipeline.WriteResult, error) {
	return f.revertRedirectFn(ctx, externalID, targetRevisionID)
}

type fakeReader struct {
	heads      map[uint64]metadata.HeadRow
	ids        map[string]uint64
	externals  map[uint64]string
	history    map[uint64][]metadata.HistoryEntry
	incoming   map[uint64][]uint64
	redirects  map[uint64]metadata.RedirectEdge
	byStatus   map[string][]metadata.ListedEntity
	byEditType map[entity.EditType][]metadata.ListedEntity
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		heads:      map[uint64]metadata.HeadRow{},
		ids:        map[string]uint64{},
		externals:  map[uint64]string{},
		history:    map[uint64][]metadata.HistoryEntry{},
		incoming:   map[uint64][]uint64{},
		redirects:  map[uint64]metadata.RedirectEdge{},
		byStatus:   map[string][]metadata.ListedEntity{},
		byEditType: map[entity.EditType][]metadata.ListedEntity{},
	}
}

func (f *fakeReader) GetRedirectEdge(_ context.Context, from uint64) (metadata.RedirectEdge, bool, error) {
	edge, ok := f.redirects[from]
	return edge, ok, nil
}

func (f *fakeReader) Resolve(_ context.Context, externalID string) (uint64, bool, error) {
	id, ok := f.ids[externalID]
	return id, ok, nil
}
func (f *fakeReader) ResolveExternalID(_ context.Context, internalID uint64) (string, bool, error) {
	id, ok := f.externals[internalID]
	return id, ok, nil
}
func (f *fakeReader) GetHead(_ context.Context, internalID uint64) (metadata.HeadRow, bool, error) {
	h, ok := f.heads[internalID]
	return h, ok, nil
}
func (f *fakeReader) GetHistory(_ context.Context, internalID uint64) ([]metadata.HistoryEntry, error) {
	return f.history[internalID], nil
}
func (f *fakeReader) GetIncomingRedirects(_ context.Context, target uint64) ([]uint64, error) {
	return f.incoming[target], nil
}
var fakeKnownStatuses = map[string]bool{"locked": true, "semi_protected": true, "archived": true, "dangling": true}

func (f *fakeReader) ListByStatus(_ context.Context, status string, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error) {
	if !fakeKnownStatuses[status] {
		return nil, entity.BadRequest("unknown status filter " + status)
	}
	return pageListedEntities(f.byStatus[status], limit, after), nil
}
func (f *fakeReader) ListByEditType(_ context.Context, editType entity.EditType, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error) {
	return pageListedEntities(f.byEditType[editType], limit, after), nil
}

// pageListedEntities mimics metadata.Index's keyset-pagination semantics
// over a pre-sorted (head_revision_id, internal_id) slice, for tests that
// exercise apiserver's cursor handling without a real Postgres instance.
func pageListedEntities(all []metadata.ListedEntity, limit int, after *metadata.ListCursor) []metadata.ListedEntity {
	start := 0
	if after != nil {
		for i, e := range all {
			if e.HeadRevisionID > after.HeadRevisionID ||
				(e.HeadRevisionID == after.HeadRevisionID && e.InternalID > after.InternalID) {
				start = i
				break
			}
			start = i + 1
		}
	}
	rest := all[start:]
	if len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]metadata.ListedEntity(nil), rest...)
}

type fakeBlobs struct {
	revisions map[string]*entity.Revision
}

func (f *fakeBlobs) Get(_ context.Context, externalID string, revisionID int64) (*entity.Revision, error) {
	rev, ok := f.revisions[blobKey(externalID, revisionID)]
	if !ok {
		return nil, entity.NotFound("no such revision")
	}
	return rev, nil
}

func blobKey(externalID string, revisionID int64) string {
	return fmt.Sprintf("%s#%d", externalID, revisionID)
}

func newTestServer() (*Server, *fakePipeline, *fakeReader, *fakeBlobs) {
	p := &fakePipeline{}
	r := newFakeReader()
	b := &fakeBlobs{revisions: map[string]*entity.Revision{}}
	s := &Server{Pipeline: p, Meta: r, Blobs: b, Repository: "entitystore"}
	return s, p, r, b
}

func TestHandleCreateOrUpdateSuccess(t *testing.T) {
	s, p, _, _ := newTestServer()
	p.writeFn = func(_ context.Context, externalID string, doc entity.Document, _ entity.RequestFlags, _ string) (*pipeline.WriteResult, error) {
		return &pipeline.WriteResult{ExternalID: externalID, RevisionID: 1, Document: doc}, nil
	}

	e := New(s)
	body := `{"id":"Q1","type":"item","labels":{"en":"test"}}`
	req := httptest.NewRequest(http.MethodPost, "/entity", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp entityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Q1", resp.ID)
	assert.Equal(t, int64(1), resp.RevisionID)
}

func TestHandleCreateOrUpdateRejectsMismatchedType(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	body := `{"id":"Q1","type":"bogus"}`
	req := httptest.NewRequest(http.MethodPost, "/entity", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateOrUpdatePropagatesForbidden(t *testing.T) {
	s, p, _, _ := newTestServer()
	p.writeFn = func(context.Context, string, entity.Document, entity.RequestFlags, string) (*pipeline.WriteResult, error) {
		return nil, entity.Forbidden("entity is locked")
	}
	e := New(s)

	body := `{"id":"Q1","type":"item"}`
	req := httptest.NewRequest(http.MethodPost, "/entity", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleGetEntityNotFound(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entity/Q404", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetEntityGoneWhenHardDeleted(t *testing.T) {
	s, _, r, _ := newTestServer()
	r.ids["Q1"] = 1
	r.heads[1] = metadata.HeadRow{InternalID: 1, HeadRevisionID: 2, Flags: entity.HeadFlags{IsDeleted: true}}
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entity/Q1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestHandleGetEntityIncludesRedirectBookkeeping(t *testing.T) {
	s, _, r, b := newTestServer()
	r.ids["Q1"] = 1
	redirectedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.heads[1] = metadata.HeadRow{InternalID: 1, HeadRevisionID: 1, Flags: entity.HeadFlags{IsRedirect: true}}
	r.redirects[1] = metadata.RedirectEdge{CreatedBy: "alice", CreatedAt: redirectedAt}
	b.revisions[blobKey("Q1", 1)] = &entity.Revision{Entity: entity.EmptyRedirectBody("Q1")}
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entity/Q1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp entityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.RedirectCreatedBy)
	require.NotNil(t, resp.RedirectCreatedAt)
	assert.True(t, redirectedAt.Equal(*resp.RedirectCreatedAt))
}

func TestHandleDeleteRejectsUnknownDeleteType(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodDelete, "/entity/Q1", strings.NewReader(`{"delete_type":"maybe"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteSoft(t *testing.T) {
	s, p, _, _ := newTestServer()
	p.softDeleteFn = func(_ context.Context, externalID, _ string) (*pipeline.WriteResult, error) {
		return &pipeline.WriteResult{ExternalID: externalID, RevisionID: 3, Flags: entity.HeadFlags{IsDeleted: true}}, nil
	}
	e := New(s)

	req := httptest.NewRequest(http.MethodDelete, "/entity/Q1", strings.NewReader(`{"delete_type":"soft"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["is_deleted"])
}

func TestHandleCreateRedirectRequiresBothIDs(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodPost, "/redirects", strings.NewReader(`{"redirect_from_id":"Q1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateRedirectPropagatesConflict(t *testing.T) {
	s, p, _, _ := newTestServer()
	p.createRedirectFn = func(context.Context, string, string, string) (*pipeline.WriteResult, error) {
		return nil, entity.Conflict("already redirects")
	}
	e := New(s)

	req := httptest.NewRequest(http.MethodPost, "/redirects", strings.NewReader(`{"redirect_from_id":"Q1","redirect_to_id":"Q2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleListEntitiesRequiresFilter(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entities", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListEntitiesRejectsUnknownStatusWithBadRequest(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entities?status=bogus", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListEntitiesResolvesExternalIDs(t *testing.T) {
	s, _, r, _ := newTestServer()
	r.externals[1] = "Q1"
	r.externals[2] = "Q2"
	r.byStatus["locked"] = []metadata.ListedEntity{
		{InternalID: 1, HeadRevisionID: 5},
		{InternalID: 2, HeadRevisionID: 7},
	}
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entities?status=locked", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listEntitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Q1", "Q2"}, resp.Entities)
	assert.Empty(t, resp.Cursor)
}

func TestHandleListEntitiesPaginatesWithCursor(t *testing.T) {
	s, _, r, _ := newTestServer()
	r.externals[1] = "Q1"
	r.externals[2] = "Q2"
	r.externals[3] = "Q3"
	r.byStatus["locked"] = []metadata.ListedEntity{
		{InternalID: 1, HeadRevisionID: 5},
		{InternalID: 2, HeadRevisionID: 7},
		{InternalID: 3, HeadRevisionID: 9},
	}
	e := New(s)

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/entities?status=locked&limit=2", nil))
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp listEntitiesResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	assert.Equal(t, []string{"Q1", "Q2"}, firstResp.Entities)
	require.NotEmpty(t, firstResp.Cursor)

	second := httptest.NewRecorder()
	url := fmt.Sprintf("/entities?status=locked&limit=2&cursor=%s", firstResp.Cursor)
	e.ServeHTTP(second, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp listEntitiesResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, []string{"Q3"}, secondResp.Entities)
	assert.Empty(t, secondResp.Cursor)
}

func TestHandleListEntitiesRejectsMalformedCursor(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/entities?status=locked&cursor=not-valid-base64!!", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteRateLimitAppliesOnlyToMutatingRoutes(t *testing.T) {
	s, p, _, _ := newTestServer()
	s.WriteRateLimit = 0.0000001 // effectively one request allowed
	p.writeFn = func(_ context.Context, externalID string, doc entity.Document, _ entity.RequestFlags, _ string) (*pipeline.WriteResult, error) {
		return &pipeline.WriteResult{ExternalID: externalID, RevisionID: 1, Document: doc}, nil
	}
	e := New(s)

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/entity", strings.NewReader(`{"id":"Q1","type":"item"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return req
	}

	first := httptest.NewRecorder()
	e.ServeHTTP(first, newReq())
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	e.ServeHTTP(second, newReq())
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	read := httptest.NewRecorder()
	e.ServeHTTP(read, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, read.Code)
}

func TestHandleHealthReportsOK(t *testing.T) {
	s, _, _, _ := newTestServer()
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeHealthChecker struct{ err error }

func (f fakeHealthChecker) Ping(context.Context) error { return f.err }

func TestHandleHealthReportsDegradedOnDependencyFailure(t *testing.T) {
	s, _, _, _ := newTestServer()
	s.BlobHealth = fakeHealthChecker{}
	s.MetaHealth = fakeHealthChecker{err: fmt.Errorf("connection refused")}
	e := New(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "ok", resp["blob_store"])
	assert.Equal(t, "connection refused", resp["metadata_index"])
}
