package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"automation-service/internal/models"
)

func (h *Handler) AddTask(c *gin.Context) {
	const what = "ADD_SYSTASK"
	var in models.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if in.TaskID == "" {
		in.TaskID = uuid.NewString()
	}
	def, err := in.Definition()
	if err != nil {
		h.fail(c, what, err)
		return
	}
	created, err := h.tasks.Create(c.Request.Context(), def)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.logger.Infof("Created task %s in system %s", created.TaskID, created.SystemID)
	h.ok(c, what, map[string]any{"taskID": created.TaskID})
}

func (h *Handler) ModTask(c *gin.Context) {
	const what = "MOD_SYSTASK"
	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if patch.SystemID == "" || patch.TaskID == "" {
		h.fail(c, what, models.Invalid("taskID", "systemID and taskID are required"))
		return
	}
	updated, err := h.tasks.Update(c.Request.Context(), patch)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.logger.Infof("Updated task %s in system %s", updated.TaskID, updated.SystemID)
	h.ok(c, what, map[string]any{"taskID": updated.TaskID})
}

func (h *Handler) DelTask(c *gin.Context) {
	const what = "DEL_SYSTASK"
	systemID, taskID := c.Param("systemID"), c.Param("taskID")
	if err := h.tasks.Delete(c.Request.Context(), systemID, taskID); err != nil {
		h.fail(c, what, err)
		return
	}
	if err := h.modes.Forget(c.Request.Context(), systemID, taskID); err != nil {
		h.logger.Warnf("Run mode cleanup for deleted task %s: %v", taskID, err)
	}
	h.logger.Infof("Deleted task %s in system %s", taskID, systemID)
	h.ok(c, what, nil)
}

func (h *Handler) GetTask(c *gin.Context) {
	const what = "QRY_SYSTASK"
	def, err := h.tasks.Get(c.Param("systemID"), c.Param("taskID"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"task": models.Flatten(def)})
}

// ListTasks pages a system's tasks. number == 0 returns all remaining from
// first; areaID narrows the listing.
func (h *Handler) ListTasks(c *gin.Context) {
	const what = "QRY_SYSTASK"
	systemID := c.Param("systemID")
	first, err := intQuery(c, "first", 0)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	number, err := intQuery(c, "number", 0)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	var defs []models.TaskDefinition
	if areaID := c.Query("areaID"); areaID != "" {
		defs = h.tasks.ListByArea(systemID, areaID, first, number)
	} else {
		defs = h.tasks.ListBySystem(systemID, first, number)
	}
	out := make([]models.TaskInput, 0, len(defs))
	for _, def := range defs {
		out = append(out, models.Flatten(def))
	}
	h.ok(c, what, map[string]any{"tasks": out, "number": len(out)})
}

func (h *Handler) TriggerTask(c *gin.Context) {
	const what = "EXE_SYSTASK"
	event, err := h.coord.TriggerNow(c.Request.Context(), c.Param("systemID"), c.Param("taskID"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"outcome": event.Outcome, "targets": event.Targets})
}

type runModeRequest struct {
	SystemID string         `json:"systemID"`
	TaskID   string         `json:"taskID"`
	RunMode  models.RunMode `json:"runMode"`
}

func (h *Handler) SetRunMode(c *gin.Context) {
	const what = "SET_RUNMODE"
	var req runModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.modes.Set(c.Request.Context(), req.SystemID, req.TaskID, req.RunMode); err != nil {
		h.fail(c, what, err)
		return
	}
	h.logger.Infof("Task %s in system %s set to %s", req.TaskID, req.SystemID, req.RunMode)
	h.ok(c, what, nil)
}

func (h *Handler) GetRunMode(c *gin.Context) {
	const what = "QRY_RUNMODE"
	systemID, taskID := c.Param("systemID"), c.Param("taskID")
	if _, err := h.tasks.Get(systemID, taskID); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"taskID": taskID, "runMode": h.modes.Get(systemID, taskID)})
}

func (h *Handler) ListRunModes(c *gin.Context) {
	const what = "QRY_RUNMODE"
	first, err := intQuery(c, "first", 0)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	number, err := intQuery(c, "number", 0)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	modes := h.modes.ListBySystem(c.Param("systemID"), first, number)
	h.ok(c, what, map[string]any{"runModes": modes, "number": len(modes)})
}

type telegramRequest struct {
	ChatID int64 `json:"chatID"`
}

// RegisterTelegram probes the chat first; an unreachable chat is rejected
// instead of silently registered.
func (h *Handler) RegisterTelegram(c *gin.Context) {
	const what = "REG_TELEGRAM"
	var req telegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.notifier.Probe(req.ChatID); err != nil {
		h.fail(c, what, err)
		return
	}
	added := h.notifier.Register(req.ChatID)
	h.logger.Infof("Telegram chat %d registered (new: %v)", req.ChatID, added)
	h.ok(c, what, map[string]any{"added": added})
}
