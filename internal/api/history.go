package api

import (
	"github.com/gin-gonic/gin"

	"automation-service/internal/ledger"
	"automation-service/internal/models"
)

// TaskHistory returns a task's firings. The task must exist; an empty result
// for a known task is a success with zero records.
func (h *Handler) TaskHistory(c *gin.Context) {
	const what = "QRY_HISTTASK"
	systemID, taskID := c.Param("systemID"), c.Param("taskID")
	if _, err := h.tasks.Get(systemID, taskID); err != nil {
		h.fail(c, what, err)
		return
	}
	begin, end, err := ledger.Window(models.QueryMode(c.Query("qureyMode")), c.Query("beginDay"), c.Query("endDay"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	entries, err := h.ledger.QueryTaskHistory(c.Request.Context(), systemID, taskID, begin, end)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"records": entries, "number": len(entries)})
}

func (h *Handler) NodeHistory(c *gin.Context) {
	const what = "QRY_HISTNODE"
	begin, end, err := ledger.Window(models.QueryMode(c.Query("qureyMode")), c.Query("beginDay"), c.Query("endDay"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	entries, err := h.ledger.QueryNodeHistory(c.Request.Context(), c.Param("systemID"), c.Param("nodeID"), begin, end)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"records": entries, "number": len(entries)})
}

// StationHistory narrows by stationID, areaID or devType; qureyMode resolves
// beginDay into the aggregation window.
func (h *Handler) StationHistory(c *gin.Context) {
	const what = "QRY_HISTSTATION"
	entries, err := h.ledger.QueryStationHistory(c.Request.Context(),
		c.Param("systemID"), c.Query("stationID"), c.Query("areaID"), c.Query("devType"),
		models.QueryMode(c.Query("qureyMode")), c.Query("beginDay"), c.Query("endDay"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"records": entries, "number": len(entries)})
}

// AuditLog returns the newest topology operations of a system.
func (h *Handler) AuditLog(c *gin.Context) {
	const what = "QRY_AUDIT"
	if h.audit == nil {
		h.ok(c, what, map[string]any{"records": []models.AuditEntry{}, "number": 0})
		return
	}
	limit, err := intQuery(c, "number", 100)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	entries, err := h.audit.RecentAudit(c.Request.Context(), c.Param("systemID"), limit)
	if err != nil {
		h.fail(c, what, &models.StorageError{Op: "audit query", Err: err})
		return
	}
	h.ok(c, what, map[string]any{"records": entries, "number": len(entries)})
}
