package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/sheep"
)

// SheepServiceInterface は家畜ハンドラーが必要とするサービスインターフェース。
type SheepServiceInterface interface {
	Create(ctx context.Context, userID, farmID string, in sheep.Input) (*model.Sheep, error)
	Update(ctx context.Context, userID, farmID, sheepID string, in sheep.Input) (*model.Sheep, error)
	AddWeight(ctx context.Context, userID, farmID, sheepID string, in sheep.WeightInput) (*model.Sheep, error)
	Get(ctx context.Context, userID, farmID, sheepID string) (*model.Sheep, error)
	List(ctx context.Context, userID, farmID string, includeArchived bool) ([]*model.Sheep, error)
	Archive(ctx context.Context, userID, farmID, sheepID string) error
	AddHistory(ctx context.Context, userID, farmID, sheepID string, in sheep.HistoryInput) (*model.SheepHistory, error)
	ListHistory(ctx context.Context, userID, farmID, sheepID string) ([]*model.SheepHistory, error)
	Genealogy(ctx context.Context, userID, farmID, sheepID string) (*sheep.Genealogy, error)
}

// SheepHandler は家畜記録のHTTPハンドラー。
type SheepHandler struct {
	service SheepServiceInterface
}

// NewSheepHandler はSheepHandlerを生成する。
func NewSheepHandler(service SheepServiceInterface) *SheepHandler {
	return &SheepHandler{service: service}
}

// List は家畜記録を返す。archived=trueでアーカイブ済みも含める。
// GET /api/farms/{id}/sheep
func (h *SheepHandler) List(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	list, err := h.service.List(r.Context(), user.ID, farmID, includeArchived)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*model.Sheep{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Create は家畜記録を登録する。
// POST /api/farms/{id}/sheep
func (h *SheepHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in sheep.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	sh, err := h.service.Create(r.Context(), user.ID, farmID, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

// Get は家畜記録を返す。
// GET /api/farms/{id}/sheep/{sid}
func (h *SheepHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	sh, err := h.service.Get(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// Update は家畜記録を更新する。
// PUT /api/farms/{id}/sheep/{sid}
func (h *SheepHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in sheep.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	sh, err := h.service.Update(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// Archive は家畜記録をアーカイブする。記録は血統参照のために残る。
// DELETE /api/farms/{id}/sheep/{sid}
func (h *SheepHandler) Archive(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	if err := h.service.Archive(r.Context(), user.ID, farmID, chi.URLParam(r, "sid")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddWeight は体重の計測値を追加する。
// POST /api/farms/{id}/sheep/{sid}/weights
func (h *SheepHandler) AddWeight(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in sheep.WeightInput
	if !decodeJSON(w, r, &in) {
		return
	}

	sh, err := h.service.AddWeight(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

// ListHistory は家畜の履歴を新しい順に返す。
// GET /api/farms/{id}/sheep/{sid}/history
func (h *SheepHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListHistory(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*model.SheepHistory{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AddHistory は履歴エントリを追加する。
// POST /api/farms/{id}/sheep/{sid}/history
func (h *SheepHandler) AddHistory(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var in sheep.HistoryInput
	if !decodeJSON(w, r, &in) {
		return
	}

	entry, err := h.service.AddHistory(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Genealogy は両親と祖父母を返す。
// GET /api/farms/{id}/sheep/{sid}/genealogy
func (h *SheepHandler) Genealogy(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	g, err := h.service.Genealogy(r.Context(), user.ID, farmID, chi.URLParam(r, "sid"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
