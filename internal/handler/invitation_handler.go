package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
)

// InvitationServiceInterface は招待ハンドラーが必要とするサービスインターフェース。
type InvitationServiceInterface interface {
	Invite(ctx context.Context, actor *model.User, farmID, email string, role model.Role) (*model.Invitation, error)
	ListPending(ctx context.Context, user *model.User) ([]*model.Invitation, error)
	Accept(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error)
	Decline(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error)
}

// InvitationHandler は招待のHTTPハンドラー。
type InvitationHandler struct {
	service InvitationServiceInterface
}

// NewInvitationHandler はInvitationHandlerを生成する。
func NewInvitationHandler(service InvitationServiceInterface) *InvitationHandler {
	return &InvitationHandler{service: service}
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Invite は農場への招待を作成する。オーナーのみ実行できる。
// POST /api/farms/{id}/invitations
func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.service.Invite(r.Context(), user, farmID, req.Email, model.Role(req.Role))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListPending は自分宛の保留中の招待を返す。
// GET /api/invitations
func (h *InvitationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	invs, err := h.service.ListPending(r.Context(), user)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if invs == nil {
		invs = []*model.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

// Accept は招待を承諾する。
// POST /api/invitations/{id}/accept
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// Decline は招待を辞退する。
// POST /api/invitations/{id}/decline
func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Decline)
}

func (h *InvitationHandler) respond(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error),
) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	inv, err := fn(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
