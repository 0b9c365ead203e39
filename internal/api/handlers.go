// Package api exposes report jobs, background tasks, stored reports and the roster
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/errors"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/httpmw"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/identity"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/jobs"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/notifications/service"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/report"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/tasks"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/vcs"
)

// RosterSource is a roster that can be re-read on demand.
type RosterSource interface {
	roster.Source
	Reload(ctx context.Context) error
}

// Dependencies are the services behind the HTTP surface. Scheduler, Bus and Metrics
// are optional.
type Dependencies struct {
	Reports   *jobs.ReportService
	Tasks     *tasks.Manager
	Store     *reportstore.Store
	Roster    RosterSource
	Resolver  *identity.Resolver
	Scheduler *jobs.Scheduler
	Bus       bus.EventBus
	Metrics   *metrics.Metrics
}

type Handlers struct {
	deps   Dependencies
	logger *logger.Logger
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(deps Dependencies, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.OtelTracing("cron-api"))
	router.Use(httpmw.RequestLogger(log, "cron-api"))
	RegisterRoutes(router, deps, log)
	return router
}

func RegisterRoutes(router *gin.Engine, deps Dependencies, log *logger.Logger) {
	h := &Handlers{
		deps:   deps,
		logger: log.Component("api-handlers"),
	}

	router.GET("/healthz", h.httpHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	api.POST("/reports/generate", h.httpGenerate)
	api.POST("/reports/send", h.httpSend)
	api.GET("/reports", h.httpListReports)
	api.GET("/reports/latest", h.httpLatestReport)
	api.GET("/reports/stats", h.httpStorageStats)
	api.DELETE("/reports/previews", h.httpClearPreviews)
	api.GET("/reports/:id", h.httpGetReport)
	api.DELETE("/reports/:id", h.httpDeleteReport)
	api.POST("/reports/:id/archive", h.httpArchiveReport)

	api.GET("/tasks", h.httpListTasks)
	api.GET("/tasks/running", h.httpRunningTasks)
	api.GET("/tasks/:id", h.httpGetTask)
	api.POST("/tasks/:id/cancel", h.httpCancelTask)
	api.GET("/tasks/:id/ws", h.wsTaskProgress)

	api.GET("/roster", h.httpRoster)
	api.POST("/roster/reload", h.httpReloadRoster)
	api.GET("/identity/resolve", h.httpResolve)
	api.GET("/schedules", h.httpSchedules)
}

var errorRules = []apperrors.Rule{
	{Target: tasks.ErrTaskNotFound, Code: apperrors.ErrCodeNotFound, Status: http.StatusNotFound},
	{Target: reportstore.ErrNotFound, Code: apperrors.ErrCodeNotFound, Status: http.StatusNotFound},
	{Target: tasks.ErrTaskNotActive, Code: apperrors.ErrCodeConflict, Status: http.StatusConflict},
	{Target: tasks.ErrTaskConflict, Code: apperrors.ErrCodeConflict, Status: http.StatusConflict},
	{Target: tasks.ErrShuttingDown, Code: apperrors.ErrCodeServiceUnavailable, Status: http.StatusServiceUnavailable},
	{Target: service.ErrUnknownDestination, Code: apperrors.ErrCodeBadRequest, Status: http.StatusBadRequest},
	{Target: service.ErrNoChannels, Code: apperrors.ErrCodeServiceUnavailable, Status: http.StatusServiceUnavailable},
	{Target: stats.ErrNoRepositories, Code: apperrors.ErrCodeServiceUnavailable, Status: http.StatusServiceUnavailable},
	{Target: stats.ErrEmptyRoster, Code: apperrors.ErrCodeServiceUnavailable, Status: http.StatusServiceUnavailable},
	{Target: vcs.ErrRateLimited, Code: apperrors.ErrCodeUpstream, Status: http.StatusBadGateway},
	{Target: vcs.ErrTransient, Code: apperrors.ErrCodeUpstream, Status: http.StatusBadGateway},
}

// fail writes err as a JSON error body with the status from errorRules.
func (h *Handlers) fail(c *gin.Context, err error) {
	appErr := apperrors.Classify(err, errorRules...)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": appErr.Code})
}

func (h *Handlers) httpHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.deps.Bus != nil {
		resp["event_bus_connected"] = h.deps.Bus.IsConnected()
	}
	c.JSON(http.StatusOK, resp)
}

func parseKind(c *gin.Context, raw string) (report.Kind, bool) {
	kind, err := report.ParseKind(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.ErrCodeBadRequest})
		return "", false
	}
	return kind, true
}

func (h *Handlers) httpGenerate(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	kind, ok := parseKind(c, body.Kind)
	if !ok {
		return
	}

	res, err := h.deps.Reports.Generate(c.Request.Context(), kind, body.Force)
	switch {
	case errors.Is(err, tasks.ErrTaskConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "task": res.Task})
	case err != nil:
		h.fail(c, err)
	case res.Cached:
		c.JSON(http.StatusOK, res)
	default:
		c.JSON(http.StatusAccepted, res)
	}
}

func (h *Handlers) httpSend(c *gin.Context) {
	var body SendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	kind, ok := parseKind(c, body.Kind)
	if !ok {
		return
	}
	rec, err := h.deps.Reports.Send(c.Request.Context(), kind, body.Destination)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) httpListReports(c *gin.Context) {
	opts := reportstore.ListOptions{
		Kind:     c.Query("kind"),
		Category: reportstore.Category(c.Query("category")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(c, apperrors.ValidationError("limit", "must be a non-negative integer"))
			return
		}
		opts.Limit = limit
	}
	recs, err := h.deps.Store.List(c.Request.Context(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ReportListResponse{Reports: recs, Total: len(recs)})
}

func (h *Handlers) httpLatestReport(c *gin.Context) {
	kind, ok := parseKind(c, c.Query("kind"))
	if !ok {
		return
	}
	var maxAge time.Duration
	if raw := c.Query("max_age_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			h.fail(c, apperrors.ValidationError("max_age_hours", "must be a non-negative integer"))
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}
	rec, err := h.deps.Store.LoadLatest(c.Request.Context(), string(kind), maxAge)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) httpStorageStats(c *gin.Context) {
	st, err := h.deps.Store.StorageStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handlers) httpClearPreviews(c *gin.Context) {
	n, err := h.deps.Store.ClearPreviews(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handlers) httpGetReport(c *gin.Context) {
	rec, err := h.deps.Store.LoadByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) httpDeleteReport(c *gin.Context) {
	if err := h.deps.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// httpArchiveReport moves a preview to the archive. With a destination, delivery is
// left to subscribers of the archived event.
func (h *Handlers) httpArchiveReport(c *gin.Context) {
	var body ArchiveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}
	ctx := c.Request.Context()
	preview, err := h.deps.Store.LoadByID(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if preview.Category != reportstore.CategoryPreview {
		h.fail(c, apperrors.Conflict("report is already archived"))
		return
	}

	meta := preview.Metadata
	meta.Extra = map[string]string{"preview_id": preview.ID}
	if body.Destination != "" {
		meta.Extra[reportstore.ExtraDeliverTo] = body.Destination
	}
	id, err := h.deps.Store.Archive(ctx, preview.Kind, preview.Content, meta)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.deps.Store.Delete(ctx, preview.ID); err != nil && !errors.Is(err, reportstore.ErrNotFound) {
		h.logger.Warn("failed to remove archived preview", zap.String("report_id", preview.ID), zap.Error(err))
	}
	rec, err := h.deps.Store.LoadByID(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) httpListTasks(c *gin.Context) {
	list := h.deps.Tasks.ListTasks()
	c.JSON(http.StatusOK, TaskListResponse{Tasks: list, Total: len(list)})
}

func (h *Handlers) httpRunningTasks(c *gin.Context) {
	list := h.deps.Tasks.GetRunningTasks()
	c.JSON(http.StatusOK, TaskListResponse{Tasks: list, Total: len(list)})
}

func (h *Handlers) httpGetTask(c *gin.Context) {
	task, err := h.deps.Tasks.GetTaskStatus(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handlers) httpCancelTask(c *gin.Context) {
	task, err := h.deps.Tasks.CancelTask(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handlers) httpRoster(c *gin.Context) {
	members, err := h.deps.Roster.Members(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RosterResponse{Members: members, Total: len(members)})
}

func (h *Handlers) httpReloadRoster(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.deps.Roster.Reload(ctx); err != nil {
		h.fail(c, apperrors.BadRequest(err.Error()))
		return
	}
	members, err := h.deps.Roster.Members(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	ApplyRoster(ctx, h.deps.Resolver, h.deps.Bus, members, h.logger)
	c.JSON(http.StatusOK, RosterResponse{Members: members, Total: len(members)})
}

// ApplyRoster rebuilds the resolver mapping from members and announces the reload.
func ApplyRoster(ctx context.Context, resolver *identity.Resolver, b bus.EventBus, members []roster.TeamMember, log *logger.Logger) {
	if resolver != nil {
		resolver.Initialize(members)
	}
	log.Info("roster applied", zap.Int("members", len(members)))
	if b == nil {
		return
	}
	ev := bus.NewEvent(events.RosterReloaded, "roster", map[string]int{"members": len(members)})
	if err := b.Publish(ctx, events.RosterReloaded, ev); err != nil {
		log.Warn("failed to publish roster event", zap.Error(err))
	}
}

func (h *Handlers) httpResolve(c *gin.Context) {
	handle, name, email := c.Query("handle"), c.Query("name"), c.Query("email")
	if handle == "" && name == "" && email == "" {
		h.fail(c, apperrors.BadRequest("one of handle, name or email is required"))
		return
	}
	member, method := h.deps.Resolver.ResolveWithMethod(handle, name, email)
	c.JSON(http.StatusOK, ResolveResponse{Member: member, Method: method, Matched: member != nil})
}

func (h *Handlers) httpSchedules(c *gin.Context) {
	if h.deps.Scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"schedules": []jobs.ScheduledJob{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": h.deps.Scheduler.Jobs()})
}
