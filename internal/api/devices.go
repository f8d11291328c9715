package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"automation-service/internal/models"
)

func (h *Handler) AddHost(c *gin.Context) {
	const what = "ADD_HOST"
	var host models.Host
	if err := c.ShouldBindJSON(&host); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.RegisterHost(c.Request.Context(), host); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"hostNo": host.HostNo})
}

func (h *Handler) ModHost(c *gin.Context) {
	const what = "MOD_HOST"
	var host models.Host
	if err := c.ShouldBindJSON(&host); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.UpdateHost(c.Request.Context(), host); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) DelHost(c *gin.Context) {
	const what = "DEL_HOST"
	hostNo, err := intParam(c, "hostNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	cascade := c.Query("cascade") == "true"
	if err := h.topo.DeleteHost(c.Request.Context(), c.Param("systemID"), hostNo, cascade); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) ListHosts(c *gin.Context) {
	const what = "QRY_HOST"
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
	hosts := h.topo.ListHosts(c.Param("systemID"), first, number)
	h.ok(c, what, map[string]any{"hosts": hosts, "number": len(hosts)})
}

func (h *Handler) AddNode(c *gin.Context) {
	const what = "ADD_NODE"
	var node models.Node
	if err := c.ShouldBindJSON(&node); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.RegisterNode(c.Request.Context(), node); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"hostNo": node.HostNo, "nodeNo": node.NodeNo})
}

func (h *Handler) ModNode(c *gin.Context) {
	const what = "MOD_NODE"
	var node models.Node
	if err := c.ShouldBindJSON(&node); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.UpdateNode(c.Request.Context(), node); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) DelNode(c *gin.Context) {
	const what = "DEL_NODE"
	hostNo, err := intParam(c, "hostNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	nodeNo, err := intParam(c, "nodeNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	cascade := c.Query("cascade") == "true"
	if err := h.topo.DeleteNode(c.Request.Context(), c.Param("systemID"), hostNo, nodeNo, cascade); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) ListNodes(c *gin.Context) {
	const what = "QRY_NODE"
	hostNo, err := intQuery(c, "hostNo", -1)
	if err != nil {
		h.fail(c, what, err)
		return
	}
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
	nodes := h.topo.ListNodes(c.Param("systemID"), hostNo, first, number)
	h.ok(c, what, map[string]any{"nodes": nodes, "number": len(nodes)})
}

type nodeStatusRequest struct {
	Action string `json:"action"`
}

// ActivateNode flips ACTIVE/DISABLED. Wake state is untouched.
func (h *Handler) ActivateNode(c *gin.Context) {
	const what = "ACTIVATE_NODE"
	h.patchNodeStatus(c, what, h.topo.SetNodeActivation)
}

// WakeNode flips SLEEP/AWAKE. Activation is untouched.
func (h *Handler) WakeNode(c *gin.Context) {
	const what = "SLEEP_NODE"
	h.patchNodeStatus(c, what, h.topo.SetNodeWake)
}

func (h *Handler) patchNodeStatus(c *gin.Context, what string, set func(ctx context.Context, systemID string, hostNo, nodeNo int, state string) error) {
	hostNo, err := intParam(c, "hostNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	nodeNo, err := intParam(c, "nodeNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	var req nodeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := set(c.Request.Context(), c.Param("systemID"), hostNo, nodeNo, req.Action); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) NodeStatus(c *gin.Context) {
	const what = "QRY_NODESTATUS"
	hostNo, err := intParam(c, "hostNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	nodeNo, err := intParam(c, "nodeNo")
	if err != nil {
		h.fail(c, what, err)
		return
	}
	node, err := h.topo.NodeStatus(c.Param("systemID"), hostNo, nodeNo)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"activation": node.Activation, "wake": node.Wake})
}

func (h *Handler) AddSubstation(c *gin.Context) {
	const what = "ADD_SUBSTATION"
	var station models.Substation
	if err := c.ShouldBindJSON(&station); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.RegisterSubstation(c.Request.Context(), station); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"stationID": station.StationID})
}

func (h *Handler) ModSubstation(c *gin.Context) {
	const what = "MOD_SUBSTATION"
	var station models.Substation
	if err := c.ShouldBindJSON(&station); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.UpdateSubstation(c.Request.Context(), station); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) DelSubstation(c *gin.Context) {
	const what = "DEL_SUBSTATION"
	if err := h.topo.DeleteSubstation(c.Request.Context(), c.Param("systemID"), c.Param("stationID")); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) ListSubstations(c *gin.Context) {
	const what = "QRY_SUBSTATION"
	hostNo, err := intQuery(c, "hostNo", -1)
	if err != nil {
		h.fail(c, what, err)
		return
	}
	nodeNo, err := intQuery(c, "nodeNo", -1)
	if err != nil {
		h.fail(c, what, err)
		return
	}
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
	stations := h.topo.ListSubstations(c.Param("systemID"), hostNo, nodeNo, c.Query("areaID"), first, number)
	h.ok(c, what, map[string]any{"substations": stations, "number": len(stations)})
}

type equipRequest struct {
	PowerOn bool `json:"powerOn"`
}

func (h *Handler) SetEquip(c *gin.Context) {
	const what = "SET_EQUIP"
	var req equipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if err := h.topo.SetStationPower(c.Request.Context(), c.Param("systemID"), c.Param("stationID"), req.PowerOn); err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, nil)
}

func (h *Handler) QueryEquip(c *gin.Context) {
	const what = "QRY_EQUIP"
	on, err := h.topo.StationPower(c.Param("systemID"), c.Param("stationID"))
	if err != nil {
		h.fail(c, what, err)
		return
	}
	h.ok(c, what, map[string]any{"powerOn": on})
}

type equipBatchRequest struct {
	Stations []struct {
		StationID string `json:"stationID"`
		PowerOn   bool   `json:"powerOn"`
	} `json:"station"`
}

// SetEquipBatch switches a list of substations. The first failing station
// aborts the batch; stations already switched stay switched.
func (h *Handler) SetEquipBatch(c *gin.Context) {
	const what = "SET_EQUIP"
	var req equipBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	if len(req.Stations) == 0 {
		h.fail(c, what, models.Invalid("station", "empty station list"))
		return
	}
	systemID := c.Param("systemID")
	for _, st := range req.Stations {
		if err := h.topo.SetStationPower(c.Request.Context(), systemID, st.StationID, st.PowerOn); err != nil {
			h.fail(c, what, err)
			return
		}
	}
	h.ok(c, what, map[string]any{"number": len(req.Stations)})
}

type equipQueryRequest struct {
	Station []models.StationRef `json:"station"`
}

// QueryEquipBatch reads the switch state of a list of substations. An unknown
// station fails the whole query.
func (h *Handler) QueryEquipBatch(c *gin.Context) {
	const what = "QRY_EQUIP"
	var req equipQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, what, models.Invalid("body", err.Error()))
		return
	}
	systemID := c.Param("systemID")
	out := make([]map[string]any, 0, len(req.Station))
	for _, ref := range req.Station {
		on, err := h.topo.StationPower(systemID, ref.StationID)
		if err != nil {
			h.fail(c, what, err)
			return
		}
		out = append(out, map[string]any{"stationID": ref.StationID, "powerOn": on})
	}
	h.ok(c, what, map[string]any{"station": out, "number": len(out)})
}
