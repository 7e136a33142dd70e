package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/dashboard"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Create(ctx context.Context, userID, farmID string, in task.Input) (*model.Task, error)
	Update(ctx context.Context, userID, farmID, taskID string, in task.Input) (*model.Task, error)
	Toggle(ctx context.Context, userID, farmID, taskID string) (*model.Task, error)
	Delete(ctx context.Context, userID, farmID, taskID string) error
	List(ctx context.Context, userID, farmID string, pendingOnly bool) ([]*model.Task, error)
}

// DashboardServiceInterface はダッシュボード集計のサービスインターフェース。
type DashboardServiceInterface interface {
	Summary(ctx context.Context, userID, farmID string) (*dashboard.Summary, error)
}

// TaskHandler はタスクとダッシュボードのHTTPハンドラー。
type TaskHandler struct {
	service   TaskServiceInterface
	dashboard DashboardServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, dashboard DashboardServiceInterface) *TaskHandler {
	return &TaskHandler{service: service, dashboard: dashboard}
}

// List はタスクを期日の昇順で返す。pending=trueで未完了のみ。
// GET /api/farms/{id}/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	pendingOnly, _ := strconv.ParseBool(r.URL.Query().Get("pending"))

	tasks, err := h.service.List(r.Context(), user.ID, farmID, pendingOnly)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create はタスクを作成する。
// POST /api/farms/{id}/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in task.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	t, err := h.service.Create(r.Context(), user.ID, farmID, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Update はタスクを更新する。
// PUT /api/farms/{id}/tasks/{tid}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in task.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	t, err := h.service.Update(r.Context(), user.ID, farmID, chi.URLParam(r, "tid"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Toggle はタスクの完了状態を反転する。
// POST /api/farms/{id}/tasks/{tid}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	t, err := h.service.Toggle(r.Context(), user.ID, farmID, chi.URLParam(r, "tid"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete はタスクを削除する。
// DELETE /api/farms/{id}/tasks/{tid}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, farmID, chi.URLParam(r, "tid")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard は農場の概要（頭数、今月の降水、直近のタスク）を返す。
// GET /api/farms/{id}/dashboard
func (h *TaskHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	summary, err := h.dashboard.Summary(r.Context(), user.ID, farmID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
