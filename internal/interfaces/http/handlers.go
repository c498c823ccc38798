package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lcsys/governance/internal/auth"
	"github.com/lcsys/governance/internal/domain/lifecycle"
	"github.com/lcsys/governance/internal/domain/record"
	"github.com/lcsys/governance/internal/governance"
	"github.com/lcsys/governance/internal/graph"
	"github.com/lcsys/governance/internal/repository"
)

type reasonBody struct {
	Reason string `json:"reason"`
}

type overrideBody struct {
	OverrideReason string `json:"override_reason"`
}

type taskBody struct {
	record.Task
	ChangeNote string `json:"change_note"`
}

type workflowBody struct {
	record.Workflow
	ChangeNote string `json:"change_note"`
}

func versionParam(c *gin.Context) (string, int, bool) {
	id := c.Param("id")
	v, err := strconv.Atoi(c.Param("version"))
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be a positive integer"})
		return "", 0, false
	}
	return id, v, true
}

// writeError maps the engine's typed errors onto HTTP status codes
func writeError(c *gin.Context, err error) {
	var (
		validationErr *governance.ValidationError
		gateErr       *governance.GateError
		refErr        *governance.ReferenceError
		cycleErr      *graph.CycleError
		immutableErr  *repository.ImmutableVersionError
		concurrentErr *repository.ConcurrentModificationError
		forbiddenErr  *auth.ForbiddenError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "fields": validationErr.Result.Errors})
	case errors.Is(err, governance.ErrChangeNoteRequired),
		errors.Is(err, governance.ErrReturnReasonRequired),
		errors.Is(err, governance.ErrOverrideReasonRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"error": forbiddenErr.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &gateErr):
		c.JSON(http.StatusConflict, gin.H{"error": gateErr.Error(), "missing": gateErr.Missing})
	case errors.As(err, &refErr):
		c.JSON(http.StatusConflict, gin.H{"error": refErr.Error(), "missing": refErr.Missing})
	case errors.As(err, &cycleErr):
		c.JSON(http.StatusConflict, gin.H{"error": cycleErr.Error(), "cycle": cycleErr.Path})
	case errors.As(err, &immutableErr):
		c.JSON(http.StatusConflict, gin.H{"error": immutableErr.Error()})
	case errors.As(err, &concurrentErr):
		c.JSON(http.StatusConflict, gin.H{"error": concurrentErr.Error(), "retryable": true})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ---- Tasks ----

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.engine.ListTasks()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) getTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	task, err := s.engine.GetTask(id, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) createTask(c *gin.Context) {
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, warnings, err := s.engine.CreateTask(actorFrom(c), &body.Task)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task, "warnings": warnings})
}

func (s *Server) updateDraftTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, warnings, err := s.engine.UpdateDraftTask(actorFrom(c), id, v, &body.Task)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "warnings": warnings})
}

func (s *Server) reviseTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body taskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, warnings, err := s.engine.ReviseTask(actorFrom(c), id, v, &body.Task, body.ChangeNote)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task, "warnings": warnings})
}

func (s *Server) submitTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	warnings, err := s.engine.SubmitTask(actorFrom(c), id, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusSubmitted), "warnings": warnings})
}

func (s *Server) confirmTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	if err := s.engine.ConfirmTask(actorFrom(c), id, v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusConfirmed)})
}

func (s *Server) returnTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ReturnTaskForChanges(actorFrom(c), id, v, body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusDraft)})
}

func (s *Server) deprecateTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	if err := s.engine.DeprecateTask(actorFrom(c), id, v, body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusDeprecated)})
}

func (s *Server) forceSubmitTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body overrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ForceSubmitTask(actorFrom(c), id, v, body.OverrideReason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusSubmitted), "override": true})
}

func (s *Server) forceConfirmTask(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body overrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ForceConfirmTask(actorFrom(c), id, v, body.OverrideReason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusConfirmed), "override": true})
}

// ---- Workflows ----

func (s *Server) listWorkflows(c *gin.Context) {
	wfs, err := s.engine.ListWorkflows()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": wfs})
}

func (s *Server) getWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	wf, err := s.engine.GetWorkflow(id, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) resolveWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	resolved, err := s.engine.ResolveWorkflow(id, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) exportWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	resolved, err := s.engine.ResolveWorkflowForExport(id, v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) createWorkflow(c *gin.Context) {
	var body workflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wf, err := s.engine.CreateWorkflow(actorFrom(c), &body.Workflow)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

func (s *Server) updateDraftWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body workflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wf, err := s.engine.UpdateDraftWorkflow(actorFrom(c), id, v, &body.Workflow)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) reviseWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body workflowBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wf, err := s.engine.ReviseWorkflow(actorFrom(c), id, v, &body.Workflow, body.ChangeNote)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wf)
}

func (s *Server) submitWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	if err := s.engine.SubmitWorkflow(actorFrom(c), id, v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusSubmitted)})
}

func (s *Server) confirmWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	if err := s.engine.ConfirmWorkflow(actorFrom(c), id, v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusConfirmed)})
}

func (s *Server) returnWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ReturnWorkflowForChanges(actorFrom(c), id, v, body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusDraft)})
}

func (s *Server) deprecateWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body reasonBody
	_ = c.ShouldBindJSON(&body)
	if err := s.engine.DeprecateWorkflow(actorFrom(c), id, v, body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusDeprecated)})
}

func (s *Server) forceSubmitWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body overrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ForceSubmitWorkflow(actorFrom(c), id, v, body.OverrideReason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusSubmitted), "override": true})
}

func (s *Server) forceConfirmWorkflow(c *gin.Context) {
	id, v, ok := versionParam(c)
	if !ok {
		return
	}
	var body overrideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ForceConfirmWorkflow(actorFrom(c), id, v, body.OverrideReason); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(record.StatusConfirmed), "override": true})
}

// ---- Audit ----

func (s *Server) listAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.engine.AuditLog(repository.Filter{
		EntityType: record.EntityType(c.Query("entity_type")),
		RecordID:   c.Query("record_id"),
		Operation:  record.Operation(c.Query("operation")),
		Actor:      c.Query("actor"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "limit": limit, "offset": offset})
}
