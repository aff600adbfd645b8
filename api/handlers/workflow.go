package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/stepflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// 🔀 工作流 Handler
// =============================================================================

// WorkflowHandler 暴露模板、实例状态与同步执行入口
type WorkflowHandler struct {
	engine     *workflow.Engine
	runTimeout time.Duration
	logger     *zap.Logger
}

// RunRequest 执行请求体
type RunRequest struct {
	Variables map[string]any `json:"variables"`
}

// TemplateInfo 模板摘要
type TemplateInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
	Variables   []string `json:"variables,omitempty"`
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(engine *workflow.Engine, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		engine: engine,
		logger: logger.With(zap.String("component", "workflow_handler")),
	}
}

// WithRunTimeout 设置单次执行超时，0 表示只受请求上下文约束
func (h *WorkflowHandler) WithRunTimeout(d time.Duration) *WorkflowHandler {
	h.runTimeout = d
	return h
}

// HandleTemplates 处理 GET /v1/templates
func (h *WorkflowHandler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.engine.Templates()
	out := make([]TemplateInfo, 0, len(templates))
	for _, t := range templates {
		steps := make([]string, len(t.Steps))
		for i, s := range t.Steps {
			steps[i] = s.Name
		}
		out = append(out, TemplateInfo{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Steps:       steps,
			Variables:   t.Variables,
		})
	}
	WriteSuccess(w, r, out)
}

// HandleRunning 处理 GET /v1/instances
func (h *WorkflowHandler) HandleRunning(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.engine.ListRunning())
}

// HandleInstance 处理 GET /v1/instances/{id}
func (h *WorkflowHandler) HandleInstance(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetStatus(r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, snap)
}

// HandleRun 处理 POST /v1/templates/{id}/run：实例化并同步执行模板。
// 执行失败时响应仍携带实例快照。
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req RunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	templateID := r.PathValue("id")
	start := time.Now()
	inst, _, runErr := h.engine.Run(ctx, templateID, req.Variables)
	if inst == nil {
		WriteError(w, r, runErr, h.logger)
		return
	}

	snap, err := h.engine.GetStatus(inst.ID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("workflow run finished",
		zap.String("template_id", templateID),
		zap.String("instance_id", inst.ID),
		zap.String("status", string(snap.Status)),
		zap.Duration("duration", time.Since(start)),
	)

	if runErr != nil {
		WriteErrorWithData(w, r, runErr, snap, h.logger)
		return
	}
	WriteSuccess(w, r, snap)
}
