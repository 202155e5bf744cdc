package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/derivia/orchepy/internal/model"
	"github.com/derivia/orchepy/internal/orcherr"
	"github.com/derivia/orchepy/internal/service"
	"github.com/derivia/orchepy/internal/store"
)

// Handlers groups the gin handler funcs for every route registered in
// Server.Start.
type Handlers struct {
	workflows *service.WorkflowService
	cases     *service.CaseService
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "orchepy"})
}

func (h *Handlers) kanban(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(kanbanHTML))
}

func respondError(c *gin.Context, err error) {
	c.JSON(orcherr.StatusCode(err), gin.H{"error": err.Error()})
}

type createWorkflowRequest struct {
	Name         string                           `json:"name"`
	Phases       []string                         `json:"phases"`
	InitialPhase string                           `json:"initial_phase"`
	WebhookURL   string                           `json:"webhook_url"`
	Automations  json.RawMessage                  `json:"automations"`
	SLAConfig    map[string]model.SLAPhaseConfig  `json:"sla_config"`
	Active       *bool                            `json:"active"`
}

func (h *Handlers) createWorkflow(c *gin.Context) {
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow payload"})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	w := &model.Workflow{
		Name:         req.Name,
		Phases:       req.Phases,
		InitialPhase: req.InitialPhase,
		WebhookURL:   req.WebhookURL,
		Automations:  req.Automations,
		SLAConfig:    req.SLAConfig,
		Active:       active,
	}
	if err := h.workflows.Create(c.Request.Context(), w); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handlers) updateWorkflow(c *gin.Context) {
	id := c.Param("id")
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow payload"})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	w := &model.Workflow{
		ID:           id,
		Name:         req.Name,
		Phases:       req.Phases,
		InitialPhase: req.InitialPhase,
		WebhookURL:   req.WebhookURL,
		Automations:  req.Automations,
		SLAConfig:    req.SLAConfig,
		Active:       active,
	}
	if err := h.workflows.Update(c.Request.Context(), w); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handlers) getWorkflow(c *gin.Context) {
	w, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handlers) listWorkflows(c *gin.Context) {
	ws, err := h.workflows.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": ws})
}

func (h *Handlers) deleteWorkflow(c *gin.Context) {
	if err := h.workflows.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) dryRunAutomations(c *gin.Context) {
	var body struct {
		Automations json.RawMessage `json:"automations"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid automations payload"})
		return
	}
	w, err := h.workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	issues, err := service.DryRunAutomations(body.Automations, w)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(issues) == 0, "issues": issues})
}

type createCaseRequest struct {
	WorkflowID  string          `json:"workflow_id"`
	Data        json.RawMessage `json:"data"`
	Metadata    json.RawMessage `json:"metadata"`
	TriggeredBy string          `json:"triggered_by"`
}

func (h *Handlers) createCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case payload"})
		return
	}
	kase, err := h.cases.Create(c.Request.Context(), req.WorkflowID, req.Data, req.Metadata, req.TriggeredBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, kase)
}

func (h *Handlers) getCase(c *gin.Context) {
	kase, err := h.cases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kase)
}

func (h *Handlers) listCases(c *gin.Context) {
	var filter store.ListFilter
	if wf := c.Query("workflow_id"); wf != "" {
		filter.WorkflowID = &wf
	}
	if st := c.Query("status"); st != "" {
		filter.Status = &st
	}
	if ph := c.Query("current_phase"); ph != "" {
		filter.CurrentPhase = &ph
	}
	filter.Limit = queryInt(c, "limit", 0)
	filter.Offset = queryInt(c, "offset", 0)

	cases, err := h.cases.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

type moveCaseRequest struct {
	ToPhase     string `json:"to_phase"`
	Reason      string `json:"reason"`
	TriggeredBy string `json:"triggered_by"`
}

func (h *Handlers) moveCase(c *gin.Context) {
	var req moveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid move payload"})
		return
	}
	if req.ToPhase == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to_phase is required"})
		return
	}
	kase, err := h.cases.Move(c.Request.Context(), c.Param("id"), req.ToPhase, req.Reason, req.TriggeredBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kase)
}

type patchCaseDataRequest struct {
	Data json.RawMessage `json:"data"`
}

func (h *Handlers) patchCaseData(c *gin.Context) {
	var req patchCaseDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patch payload"})
		return
	}
	kase, err := h.cases.PatchData(c.Request.Context(), c.Param("id"), req.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kase)
}

func (h *Handlers) caseHistory(c *gin.Context) {
	entries, err := h.cases.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
