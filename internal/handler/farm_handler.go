package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
)

// FarmServiceInterface は農場ハンドラーが必要とするサービスインターフェース。
type FarmServiceInterface interface {
	CreateFarm(ctx context.Context, owner *model.User, name string) (*model.Farm, error)
	List(ctx context.Context, userID string) ([]*model.Farm, error)
	Get(ctx context.Context, userID, farmID string) (*model.Farm, error)
	ChangeMemberRole(ctx context.Context, actorID, farmID, targetID string, role model.Role) error
	RemoveMember(ctx context.Context, actorID, farmID, targetID string) error
	ResolveActive(ctx context.Context, userID string) (*model.Farm, error)
	SetActive(ctx context.Context, userID, farmID string) (*model.Farm, error)
}

// FarmHandler は農場とメンバー管理のHTTPハンドラー。
type FarmHandler struct {
	service FarmServiceInterface
}

// NewFarmHandler はFarmHandlerを生成する。
func NewFarmHandler(service FarmServiceInterface) *FarmHandler {
	return &FarmHandler{service: service}
}

type createFarmRequest struct {
	Name string `json:"name"`
}

type setActiveRequest struct {
	FarmID string `json:"farm_id"`
}

type memberRoleRequest struct {
	Role string `json:"role"`
}

// activeFarmResponse は選択中の農場のレスポンス。所属農場がない場合Farmはnull。
type activeFarmResponse struct {
	Farm *farmResponse `json:"farm"`
}

// ListFarms は所属農場の一覧を返す。
// GET /api/farms
func (h *FarmHandler) ListFarms(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	farms, err := h.service.List(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmResponses(farms, user.ID))
}

// CreateFarm は農場を作成し、作成者をオーナーとして登録する。
// POST /api/farms
func (h *FarmHandler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req createFarmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	farm, err := h.service.CreateFarm(r.Context(), user, req.Name)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFarmResponse(farm, user.ID))
}

// GetActive は選択中の農場を返す。
// GET /api/farms/active
func (h *FarmHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	farm, err := h.service.ResolveActive(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activeResponse(farm, user.ID))
}

// SetActive は選択中の農場を変更する。
// PUT /api/farms/active
func (h *FarmHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	farm, err := h.service.SetActive(r.Context(), user.ID, req.FarmID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activeResponse(farm, user.ID))
}

// GetFarm は農場の詳細とメンバー一覧を返す。
// GET /api/farms/{id}
func (h *FarmHandler) GetFarm(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	farm, err := h.service.Get(r.Context(), user.ID, farmID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmResponse(farm, user.ID))
}

// ChangeMemberRole はメンバーの役割を変更する。オーナーのみ実行できる。
// PUT /api/farms/{id}/members/{uid}
func (h *FarmHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var req memberRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.ChangeMemberRole(r.Context(), user.ID, farmID, chi.URLParam(r, "uid"), model.Role(req.Role))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember はメンバーを農場から外す。オーナーのみ実行できる。
// DELETE /api/farms/{id}/members/{uid}
func (h *FarmHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), user.ID, farmID, chi.URLParam(r, "uid")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FarmHandler) activeResponse(farm *model.Farm, userID string) activeFarmResponse {
	if farm == nil {
		return activeFarmResponse{}
	}
	resp := toFarmResponse(farm, userID)
	return activeFarmResponse{Farm: &resp}
}
