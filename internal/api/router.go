// Package api is the HTTP surface. Every operation answers with the command
// envelope: what names the operation, code "0" is success, failures carry
// errNo and errMsg.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"automation-service/internal/config"
	"automation-service/internal/dispatch"
	"automation-service/internal/ledger"
	"automation-service/internal/logging"
	"automation-service/internal/models"
	"automation-service/internal/notify"
	"automation-service/internal/runmode"
	"automation-service/internal/taskstore"
	"automation-service/internal/topology"
	"automation-service/internal/ws"
)

// AuditReader serves the topology operation log. Nil disables the endpoint.
type AuditReader interface {
	RecentAudit(ctx context.Context, systemID string, limit int) ([]models.AuditEntry, error)
}

type Handler struct {
	tasks    *taskstore.Store
	modes    *runmode.Controller
	topo     *topology.Registry
	ledger   *ledger.Ledger
	coord    *dispatch.Coordinator
	hub      *ws.Hub
	notifier *notify.Telegram
	audit    AuditReader
	logger   *logging.Logger
}

func NewHandler(tasks *taskstore.Store, modes *runmode.Controller, topo *topology.Registry, led *ledger.Ledger, coord *dispatch.Coordinator, hub *ws.Hub, notifier *notify.Telegram, audit AuditReader, logger *logging.Logger) *Handler {
	return &Handler{
		tasks:    tasks,
		modes:    modes,
		topo:     topo,
		ledger:   led,
		coord:    coord,
		hub:      hub,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

func NewRouter(h *Handler, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(h.logger))

	api := r.Group(cfg.API.BasePath)
	{
		// Tasks
		api.POST("/tasks", h.AddTask)
		api.PUT("/tasks", h.ModTask)
		api.DELETE("/tasks/:systemID/:taskID", h.DelTask)
		api.GET("/tasks/:systemID/:taskID", h.GetTask)
		api.GET("/tasks/:systemID", h.ListTasks)
		api.POST("/tasks/:systemID/:taskID/trigger", h.TriggerTask)

		// Run mode
		api.PUT("/runmode", h.SetRunMode)
		api.GET("/runmode/:systemID/:taskID", h.GetRunMode)
		api.GET("/runmode/:systemID", h.ListRunModes)

		// History
		api.GET("/history/task/:systemID/:taskID", h.TaskHistory)
		api.GET("/history/node/:systemID/:nodeID", h.NodeHistory)
		api.GET("/history/station/:systemID", h.StationHistory)

		// Hosts
		api.POST("/hosts", h.AddHost)
		api.PUT("/hosts", h.ModHost)
		api.DELETE("/hosts/:systemID/:hostNo", h.DelHost)
		api.GET("/hosts/:systemID", h.ListHosts)

		// Nodes
		api.POST("/nodes", h.AddNode)
		api.PUT("/nodes", h.ModNode)
		api.DELETE("/nodes/:systemID/:hostNo/:nodeNo", h.DelNode)
		api.GET("/nodes/:systemID", h.ListNodes)
		api.PUT("/nodes/:systemID/:hostNo/:nodeNo/activation", h.ActivateNode)
		api.PUT("/nodes/:systemID/:hostNo/:nodeNo/wake", h.WakeNode)
		api.GET("/nodes/:systemID/:hostNo/:nodeNo/status", h.NodeStatus)

		// Substations
		api.POST("/substations", h.AddSubstation)
		api.PUT("/substations", h.ModSubstation)
		api.DELETE("/substations/:systemID/:stationID", h.DelSubstation)
		api.GET("/substations/:systemID", h.ListSubstations)
		api.PUT("/substations/:systemID/:stationID/power", h.SetEquip)
		api.GET("/substations/:systemID/:stationID/power", h.QueryEquip)
		api.PUT("/equip/:systemID", h.SetEquipBatch)
		api.POST("/equip/:systemID/query", h.QueryEquipBatch)

		// Operation log and push channel
		api.GET("/audit/:systemID", h.AuditLog)
		api.GET("/ws/:systemID", h.WebSocket)

		// Telegram
		api.POST("/telegram/register", h.RegisterTelegram)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func (h *Handler) ok(c *gin.Context, what string, fields map[string]any) {
	c.JSON(http.StatusOK, models.OK(what, fields))
}

func (h *Handler) fail(c *gin.Context, what string, err error) {
	h.logger.Warnf("%s failed: %v", what, err)
	c.JSON(httpStatus(err), models.Fail(what, err))
}

func httpStatus(err error) int {
	var ve *models.ValidationError
	var de *models.DispatchError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &de):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// intQuery reads an optional integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.Invalid(name, "not an integer")
	}
	return v, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, models.Invalid(name, "not an integer")
	}
	return v, nil
}
