package apiserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
	"entitystore.dev/pipeline"
	"entitystore.dev/rdf"
)

// createRequest is the body of POST /entity (spec.md §6 "Create request
// fields").
type createRequest struct {
	ID                     string                        `json:"id"`
	Type                   entity.EntityType             `json:"type"`
	Labels                 map[string]string             `json:"labels,omitempty"`
	Descriptions           map[string]string             `json:"descriptions,omitempty"`
	Aliases                map[string][]string           `json:"aliases,omitempty"`
	Claims                 map[string][]entity.Statement `json:"claims,omitempty"`
	Sitelinks              map[string]entity.Sitelink    `json:"sitelinks,omitempty"`
	IsMassEdit             bool                           `json:"is_mass_edit"`
	EditType               entity.EditType                `json:"edit_type"`
	IsSemiProtected        bool                           `json:"is_semi_protected"`
	IsLocked               bool                           `json:"is_locked"`
	IsArchived             bool                           `json:"is_archived"`
	IsDangling             bool                           `json:"is_dangling"`
	IsMassEditProtected    bool                           `json:"is_mass_edit_protected"`
	IsNotAutoconfirmedUser bool                           `json:"is_not_autoconfirmed_user"`
	CreatedBy              string                         `json:"created_by"`
}

// entityResponse mirrors spec.md §6 "EntityResponse". RedirectCreatedBy/At
// are populated only when the entity is itself a redirect source, sparing
// callers a separate get_history round-trip to learn who redirected it and
// when.
type entityResponse struct {
	ID                  string          `json:"id"`
	RevisionID          int64           `json:"revision_id"`
	Data                entity.Document `json:"data"`
	IsSemiProtected     bool            `json:"is_semi_protected"`
	IsLocked            bool            `json:"is_locked"`
	IsArchived          bool            `json:"is_archived"`
	IsDangling          bool            `json:"is_dangling"`
	IsMassEditProtected bool            `json:"is_mass_edit_protected"`
	RedirectCreatedBy   string          `json:"redirect_created_by,omitempty"`
	RedirectCreatedAt   *time.Time      `json:"redirect_created_at,omitempty"`
}

func toEntityResponse(id string, revisionID int64, doc entity.Document, flags entity.HeadFlags) entityResponse {
	return entityResponse{
		ID:                  id,
		RevisionID:          revisionID,
		Data:                doc,
		IsSemiProtected:     flags.IsSemiProtected,
		IsLocked:            flags.IsLocked,
		IsArchived:          flags.IsArchived,
		IsDangling:          flags.IsDangling,
		IsMassEditProtected: flags.IsMassEditProtected,
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	details := echo.Map{}

	if s.BlobHealth != nil {
		if err := s.BlobHealth.Ping(c.Request().Context()); err != nil {
			status = "degraded"
			details["blob_store"] = err.Error()
		} else {
			details["blob_store"] = "ok"
		}
	}
	if s.MetaHealth != nil {
		if err := s.MetaHealth.Ping(c.Request().Context()); err != nil {
			status = "degraded"
			details["metadata_index"] = err.Error()
		} else {
			details["metadata_index"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{
		"status":         status,
		"blob_store":     details["blob_store"],
		"metadata_index": details["metadata_index"],
	})
}

func (s *Server) handleCreateOrUpdate(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return entity.BadRequest("malformed request body: " + err.Error())
	}

	doc := entity.Document{
		ID:           req.ID,
		Type:         req.Type,
		Labels:       req.Labels,
		Descriptions: req.Descriptions,
		Aliases:      req.Aliases,
		Claims:       req.Claims,
		Sitelinks:    req.Sitelinks,
	}
	if err := doc.Validate(req.ID); err != nil {
		return err
	}

	flags := entity.RequestFlags{
		IsMassEdit:             req.IsMassEdit,
		EditType:               req.EditType,
		IsSemiProtected:        req.IsSemiProtected,
		IsLocked:               req.IsLocked,
		IsArchived:             req.IsArchived,
		IsDangling:             req.IsDangling,
		IsMassEditProtected:    req.IsMassEditProtected,
		IsNotAutoconfirmedUser: req.IsNotAutoconfirmedUser,
	}

	result, err := s.Pipeline.Write(c.Request().Context(), req.ID, doc, flags, req.CreatedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEntityResponse(result.ExternalID, result.RevisionID, result.Document, result.Flags))
}

func (s *Server) handleGetEntity(c echo.Context) error {
	id := c.Param("id")

	internalID, ok, err := s.Meta.Resolve(c.Request().Context(), id)
	if err != nil {
		return entity.IOError("resolve entity", err)
	}
	if !ok {
		return entity.NotFound(id + " is not registered")
	}

	head, ok, err := s.Meta.GetHead(c.Request().Context(), internalID)
	if err != nil {
		return entity.IOError("read head", err)
	}
	if !ok {
		return entity.NotFound(id + " has no revisions")
	}
	if head.Flags.IsDeleted {
		return entity.Gone(id + " has been hard-deleted")
	}

	rev, err := s.Blobs.Get(c.Request().Context(), id, head.HeadRevisionID)
	if err != nil {
		return entity.IOError("read revision blob", err)
	}

	resp := toEntityResponse(id, head.HeadRevisionID, rev.Entity, head.Flags)
	if head.Flags.IsRedirect {
		if edge, ok, err := s.Meta.GetRedirectEdge(c.Request().Context(), internalID); err != nil {
			return entity.IOError("read redirect edge", err)
		} else if ok {
			resp.RedirectCreatedBy = edge.CreatedBy
			resp.RedirectCreatedAt = &edge.CreatedAt
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c echo.Context) error {
	id := c.Param("id")

	internalID, ok, err := s.Meta.Resolve(c.Request().Context(), id)
	if err != nil {
		return entity.IOError("resolve entity", err)
	}
	if !ok {
		return entity.NotFound(id + " is not registered")
	}

	history, err := s.Meta.GetHistory(c.Request().Context(), internalID)
	if err != nil {
		return entity.IOError("read history", err)
	}
	return c.JSON(http.StatusOK, history)
}

func (s *Server) parseRevisionParam(c echo.Context) (int64, error) {
	rev, err := strconv.ParseInt(c.Param("rev"), 10, 64)
	if err != nil {
		return 0, entity.BadRequest("revision must be an integer")
	}
	return rev, nil
}

func (s *Server) handleGetRevisionBody(c echo.Context) error {
	id := c.Param("id")
	rev, err := s.parseRevisionParam(c)
	if err != nil {
		return err
	}

	record, err := s.Blobs.Get(c.Request().Context(), id, rev)
	if err != nil {
		return entity.NotFound("revision not found: " + err.Error())
	}
	return c.JSON(http.StatusOK, record.Entity)
}

func (s *Server) handleGetRawRevision(c echo.Context) error {
	id := c.Param("id")
	rev, err := s.parseRevisionParam(c)
	if err != nil {
		return err
	}

	record, err := s.Blobs.Get(c.Request().Context(), id, rev)
	if err != nil {
		return entity.NotFound("revision not found: " + err.Error())
	}
	return c.JSON(http.StatusOK, record)
}

type deleteRequest struct {
	DeleteType string `json:"delete_type"`
	CreatedBy  string `json:"created_by"`
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return entity.BadRequest("malformed request body: " + err.Error())
	}

	var (
		result *pipeline.WriteResult
		err    error
	)
	switch req.DeleteType {
	case "soft":
		result, err = s.Pipeline.SoftDelete(c.Request().Context(), id, req.CreatedBy)
	case "hard":
		result, err = s.Pipeline.HardDelete(c.Request().Context(), id, req.CreatedBy)
	default:
		return entity.BadRequest("delete_type must be 'soft' or 'hard'")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":          id,
		"revision_id": result.RevisionID,
		"delete_type": req.DeleteType,
		"is_deleted":  result.Flags.IsDeleted,
	})
}

type redirectRequest struct {
	RedirectFromID string `json:"redirect_from_id"`
	RedirectToID   string `json:"redirect_to_id"`
	CreatedBy      string `json:"created_by"`
}

func (s *Server) handleCreateRedirect(c echo.Context) error {
	var req redirectRequest
	if err := c.Bind(&req); err != nil {
		return entity.BadRequest("malformed request body: " + err.Error())
	}
	if req.RedirectFromID == "" || req.RedirectToID == "" {
		return entity.BadRequest("redirect_from_id and redirect_to_id are required")
	}

	result, err := s.Pipeline.CreateRedirect(c.Request().Context(), req.RedirectFromID, req.RedirectToID, req.CreatedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"redirect_from_id": req.RedirectFromID,
		"redirect_to_id":   req.RedirectToID,
		"revision_id":      result.RevisionID,
	})
}

type revertRedirectRequest struct {
	RevertToRevisionID int64  `json:"revert_to_revision_id"`
	RevertReason        string `json:"revert_reason"`
	CreatedBy           string `json:"created_by"`
}

func (s *Server) handleRevertRedirect(c echo.Context) error {
	id := c.Param("id")
	var req revertRedirectRequest
	if err := c.Bind(&req); err != nil {
		return entity.BadRequest("malformed request body: " + err.Error())
	}
	if req.RevertToRevisionID <= 0 {
		return entity.BadRequest("revert_to_revision_id is required")
	}

	result, err := s.Pipeline.RevertRedirect(c.Request().Context(), id, req.RevertToRevisionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEntityResponse(result.ExternalID, result.RevisionID, result.Document, result.Flags))
}

func (s *Server) handleTurtle(c echo.Context) error {
	id := strings.TrimSuffix(c.Param("idttl"), ".ttl")

	internalID, ok, err := s.Meta.Resolve(c.Request().Context(), id)
	if err != nil {
		return entity.IOError("resolve entity", err)
	}
	if !ok {
		return entity.NotFound(id + " is not registered")
	}

	head, ok, err := s.Meta.GetHead(c.Request().Context(), internalID)
	if err != nil {
		return entity.IOError("read head", err)
	}
	if !ok {
		return entity.NotFound(id + " has no revisions")
	}
	if head.Flags.IsDeleted {
		return entity.Gone(id + " has been hard-deleted")
	}

	rev, err := s.Blobs.Get(c.Request().Context(), id, head.HeadRevisionID)
	if err != nil {
		return entity.IOError("read revision blob", err)
	}

	incoming, err := s.Meta.GetIncomingRedirects(c.Request().Context(), internalID)
	if err != nil {
		return entity.IOError("read incoming redirects", err)
	}
	incomingIDs := make([]string, 0, len(incoming))
	for _, internal := range incoming {
		externalID, ok, err := s.Meta.ResolveExternalID(c.Request().Context(), internal)
		if err != nil {
			return entity.IOError("resolve incoming redirect source", err)
		}
		if ok {
			incomingIDs = append(incomingIDs, externalID)
		}
	}

	serializer := rdf.New(rdf.Options{
		RepositoryName:    s.Repository,
		Properties:        s.Properties,
		IncomingRedirects: incomingIDs,
	})
	turtle, err := serializer.Serialize(rev.Entity)
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, "text/turtle", []byte(turtle))
}

// listEntitiesResponse mirrors spec.md §6's `/entities` listing, extended
// with the opaque pagination cursor SPEC_FULL.md §3.1 supplemented
// feature 2 adds: a client that omits cursor gets exactly spec.md's
// single-page behavior, and one that follows it page-by-page eventually
// drains the cursor field, signalling no more rows.
type listEntitiesResponse struct {
	Entities []string `json:"entities"`
	Cursor   string   `json:"cursor,omitempty"`
}

// encodeCursor packs a (head_revision_id, internal_id) row position into
// the opaque base64 token handed back to callers.
func encodeCursor(c metadata.ListCursor) string {
	return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%d:%d", c.HeadRevisionID, c.InternalID)))
}

// decodeCursor reverses encodeCursor. A malformed token is a client
// error, not a server one.
func decodeCursor(s string) (metadata.ListCursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return metadata.ListCursor{}, entity.BadRequest("invalid cursor")
	}
	headRevisionID, internalID, ok := strings.Cut(string(raw), ":")
	if !ok {
		return metadata.ListCursor{}, entity.BadRequest("invalid cursor")
	}
	rev, err := strconv.ParseInt(headRevisionID, 10, 64)
	if err != nil {
		return metadata.ListCursor{}, entity.BadRequest("invalid cursor")
	}
	internal, err := strconv.ParseUint(internalID, 10, 64)
	if err != nil {
		return metadata.ListCursor{}, entity.BadRequest("invalid cursor")
	}
	return metadata.ListCursor{HeadRevisionID: rev, InternalID: internal}, nil
}

func (s *Server) handleListEntities(c echo.Context) error {
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			return entity.BadRequest("limit must be a positive integer")
		}
		limit = parsed
	}

	var after *metadata.ListCursor
	if cur := c.QueryParam("cursor"); cur != "" {
		decoded, err := decodeCursor(cur)
		if err != nil {
			return err
		}
		after = &decoded
	}

	ctx := c.Request().Context()

	var rows []metadata.ListedEntity
	var err error
	switch {
	case c.QueryParam("status") != "":
		rows, err = s.Meta.ListByStatus(ctx, c.QueryParam("status"), limit+1, after)
	case c.QueryParam("edit_type") != "":
		rows, err = s.Meta.ListByEditType(ctx, entity.EditType(c.QueryParam("edit_type")), limit+1, after)
	default:
		return entity.BadRequest("either status or edit_type query parameter is required")
	}
	if err != nil {
		return err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	resp := listEntitiesResponse{Entities: make([]string, 0, len(rows))}
	for _, row := range rows {
		externalID, ok, err := s.Meta.ResolveExternalID(ctx, row.InternalID)
		if err != nil {
			return entity.IOError("resolve listed entity", err)
		}
		if ok {
			resp.Entities = append(resp.Entities, externalID)
		}
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		resp.Cursor = encodeCursor(metadata.ListCursor{HeadRevisionID: last.HeadRevisionID, InternalID: last.InternalID})
	}

	return c.JSON(http.StatusOK, resp)
}
