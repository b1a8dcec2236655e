package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"sqlbridge/internal/shared"
	"sqlbridge/internal/store"
)

// Handler exposes the store over HTTP. Every endpoint is a POST taking a
// small JSON body; databases are addressed by their connection string and
// transactions by the opaque id returned from begin.
type Handler struct {
	registry *store.Registry
	txm      *store.TxManager
	exec     *store.Executor
	migrator *store.Migrator
	dataDir  string
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler over the given store components.
// dataDir anchors relative paths in connection strings.
func NewHandler(registry *store.Registry, txm *store.TxManager, exec *store.Executor, migrator *store.Migrator, dataDir string, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		txm:      txm,
		exec:     exec,
		migrator: migrator,
		dataDir:  dataDir,
		logger:   logger,
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/open", h.open)
	v1.POST("/close", h.close)
	v1.POST("/execute", h.execute)
	v1.POST("/select", h.selectRows)
	v1.POST("/begin", h.begin)
	v1.POST("/commit", h.commit)
	v1.POST("/rollback", h.rollback)
	v1.POST("/migrate", h.migrate)
	r.GET("/healthz", h.health)
}

type openRequest struct {
	DB         string   `json:"db" binding:"required"`
	Extensions []string `json:"extensions"`
}

type closeRequest struct {
	DB string `json:"db" binding:"required"`
}

type statementRequest struct {
	DB     string        `json:"db"`
	TxID   string        `json:"txId"`
	Query  string        `json:"query" binding:"required"`
	Values []store.Value `json:"values"`
}

type beginRequest struct {
	DB string `json:"db" binding:"required"`
}

type txRequest struct {
	TxID string `json:"txId" binding:"required"`
}

type migrateRequest struct {
	DB      string `json:"db" binding:"required"`
	Version int64  `json:"version"`
}

func (h *Handler) open(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	src, err := store.Resolve(req.DB, h.dataDir)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := h.registry.Open(c.Request.Context(), src, req.Extensions); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alias": src.Alias})
}

func (h *Handler) close(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	src, err := store.Resolve(req.DB, h.dataDir)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": h.registry.Close(src.Alias)})
}

func (h *Handler) execute(c *gin.Context) {
	var req statementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	target, err := h.target(req)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.exec.Execute(c.Request.Context(), target, req.Query, req.Values)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) selectRows(c *gin.Context) {
	var req statementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	target, err := h.target(req)
	if err != nil {
		fail(c, err)
		return
	}
	rows, err := h.exec.Select(c.Request.Context(), target, req.Query, req.Values)
	if err != nil {
		fail(c, err)
		return
	}
	if rows == nil {
		rows = []store.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *Handler) begin(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	src, err := store.Resolve(req.DB, h.dataDir)
	if err != nil {
		fail(c, err)
		return
	}
	id, err := h.txm.Begin(c.Request.Context(), src.Alias)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txId": id})
}

func (h *Handler) commit(c *gin.Context) {
	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.txm.Commit(c.Request.Context(), req.TxID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) rollback(c *gin.Context) {
	var req txRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.txm.Rollback(c.Request.Context(), req.TxID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) migrate(c *gin.Context) {
	var req migrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	src, err := store.Resolve(req.DB, h.dataDir)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.migrator.MigrateTo(c.Request.Context(), src.Alias, req.Version); err != nil {
		fail(c, err)
		return
	}
	applied, err := h.migrator.AppliedVersion(c.Request.Context(), src.Alias)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": applied})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "databases": len(h.registry.Aliases())})
}

// target picks the execution target: an explicit transaction id wins,
// otherwise the db connection string resolves to an alias.
func (h *Handler) target(req statementRequest) (store.Target, error) {
	if req.TxID != "" {
		return store.TxTarget(req.TxID), nil
	}
	if req.DB == "" {
		return store.Target{}, shared.Wrap(shared.ErrInvalidConnectionString, "either db or txId is required")
	}
	src, err := store.Resolve(req.DB, h.dataDir)
	if err != nil {
		return store.Target{}, err
	}
	return store.AliasTarget(src.Alias), nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"kind": "bad_request", "message": err.Error()}})
}

// fail renders a classified store error. The kind drives the HTTP status so
// clients can branch without parsing messages.
func fail(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	c.JSON(statusOf(kind), gin.H{"error": gin.H{"kind": kind.String(), "message": err.Error()}})
}

func statusOf(kind shared.Kind) int {
	switch kind {
	case shared.KindUnknownAlias, shared.KindUnknownTransaction, shared.KindUnknownMigrationVersion:
		return http.StatusNotFound
	case shared.KindInvalidConnectionString, shared.KindParameterCount:
		return http.StatusBadRequest
	case shared.KindTransactionStart, shared.KindTransactionClosed, shared.KindCommit, shared.KindIrreversibleMigration:
		return http.StatusConflict
	case shared.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
