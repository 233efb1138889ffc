// Package apiserver implements the HTTP surface of spec.md §6: an
// Echo-based handler table over the Revision Pipeline, Metadata Index,
// and Turtle Serializer, with entity.Error.Kind mapped to the status
// codes spec.md §7 assigns.
package apiserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"entitystore.dev/entity"
	"entitystore.dev/metadata"
	"entitystore.dev/pipeline"
	"entitystore.dev/rdf"
)

// Pipeline is the subset of *pipeline.Pipeline the handlers call.
type Pipeline interface {
	Write(ctx context.Context, externalID string, doc entity.Document, req entity.RequestFlags, createdBy string) (*pipeline.WriteResult, error)
	SoftDelete(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error)
	HardDelete(ctx context.Context, externalID, createdBy string) (*pipeline.WriteResult, error)
	CreateRedirect(ctx context.Context, from, to, createdBy string) (*pipeline.WriteResult, error)
	RevertRedirect(ctx context.Context, externalID string, targetRevisionID int64) (*pipeline.WriteResult, error)
}

// Reader is the subset of read-path operations the handlers call,
// satisfied by *metadata.Index. apiserver only ever reads through this
// seam, never by holding a concrete *metadata.Index.
type Reader interface {
	Resolve(ctx context.Context, externalID string) (internalID uint64, ok bool, err error)
	ResolveExternalID(ctx context.Context, internalID uint64) (externalID string, ok bool, err error)
	GetHead(ctx context.Context, internalID uint64) (metadata.HeadRow, bool, error)
	GetHistory(ctx context.Context, internalID uint64) ([]metadata.HistoryEntry, error)
	GetIncomingRedirects(ctx context.Context, target uint64) ([]uint64, error)
	GetRedirectEdge(ctx context.Context, from uint64) (metadata.RedirectEdge, bool, error)
	ListByStatus(ctx context.Context, status string, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error)
	ListByEditType(ctx context.Context, editType entity.EditType, limit int, after *metadata.ListCursor) ([]metadata.ListedEntity, error)
}

// BlobReader is the subset of blobstore.Store the read path needs.
type BlobReader interface {
	Get(ctx context.Context, externalID string, revisionID int64) (*entity.Revision, error)
}

// HealthChecker reports liveness of a dependency for GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server holds every collaborator the handler table dispatches to.
type Server struct {
	Pipeline   Pipeline
	Meta       Reader
	Blobs      BlobReader
	Properties *rdf.Registry
	Repository string
	Logger     *logrus.Logger

	BlobHealth HealthChecker
	MetaHealth HealthChecker

	// WriteRateLimit caps requests per second on the mutating routes
	// (create/update, delete, redirect). Zero disables rate limiting.
	WriteRateLimit float64
}

// New builds an Echo instance with every route in spec.md §6 registered
// and the teacher's standard middleware stack applied.
func New(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.BodyLimit("10M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))

	e.HTTPErrorHandler = s.errorHandler

	var writeLimiter echo.MiddlewareFunc
	if s.WriteRateLimit > 0 {
		writeLimiter = middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.WriteRateLimit),
		))
	}
	write := func(h echo.HandlerFunc) echo.HandlerFunc {
		if writeLimiter == nil {
			return h
		}
		return writeLimiter(h)
	}

	e.GET("/health", s.handleHealth)
	e.POST("/entity", write(s.handleCreateOrUpdate))
	e.GET("/entity/:id", s.handleGetEntity)
	e.GET("/entity/:id/history", s.handleHistory)
	e.GET("/entity/:id/revision/:rev", s.handleGetRevisionBody)
	e.GET("/raw/:id/:rev", s.handleGetRawRevision)
	e.DELETE("/entity/:id", write(s.handleDelete))
	e.POST("/redirects", write(s.handleCreateRedirect))
	e.POST("/entities/:id/revert-redirect", write(s.handleRevertRedirect))
	e.GET("/wiki/Special:EntityData/:idttl", s.handleTurtle)
	e.GET("/entities", s.handleListEntities)

	return e
}

// StartWithGracefulShutdown runs e until ctx is cancelled, then shuts it
// down within shutdownTimeout.
func StartWithGracefulShutdown(ctx context.Context, e *echo.Echo, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

// errorHandler maps entity.Error.Kind to the status-code table spec.md
// §7 defines. Errors that don't carry a Kind fall back to Echo's default
// handling (500, or whatever an echo.HTTPError already specified).
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	kind, ok := entity.KindOf(err)
	if !ok {
		if he, isHTTP := err.(*echo.HTTPError); isHTTP {
			c.JSON(he.Code, echo.Map{"error": he.Message})
			return
		}
		if s.Logger != nil {
			s.Logger.WithError(err).Error("unhandled error")
		}
		c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		return
	}

	status := statusForKind(kind)
	c.JSON(status, echo.Map{"error": err.Error(), "kind": string(kind)})
}

func statusForKind(kind entity.Kind) int {
	switch kind {
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindGone:
		return http.StatusGone
	case entity.KindForbidden:
		return http.StatusForbidden
	case entity.KindConflict:
		return http.StatusConflict
	case entity.KindLockedLike:
		return http.StatusLocked
	case entity.KindBadRequest:
		return http.StatusBadRequest
	case entity.KindIOError:
		return http.StatusServiceUnavailable
	case entity.KindInvalidReference:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
