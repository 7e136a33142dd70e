package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Approved bool           `json:"approved"`
	Role     model.UserRole `json:"role"`
}

// farmResponse は農場情報のAPIレスポンス。
// Roleはリクエストしたユーザー自身の役割。
type farmResponse struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	OwnerID    string         `json:"owner_id"`
	OwnerEmail string         `json:"owner_email"`
	Role       model.Role     `json:"role"`
	Members    []model.Member `json:"members"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Approved: u.IsApproved,
		Role:     u.Role,
	}
}

// toFarmResponse はmodel.FarmをAPIレスポンスに変換する。
// メンバーは参加日時の昇順、同時刻ならメールアドレス順に並べる。
func toFarmResponse(f *model.Farm, userID string) farmResponse {
	members := make([]model.Member, 0, len(f.Members))
	for _, m := range f.Members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].Email < members[j].Email
	})

	role, _ := f.RoleOf(userID)
	return farmResponse{
		ID:         f.ID,
		Name:       f.Name,
		OwnerID:    f.OwnerID,
		OwnerEmail: f.OwnerEmail,
		Role:       role,
		Members:    members,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

func toFarmResponses(farms []*model.Farm, userID string) []farmResponse {
	out := make([]farmResponse, 0, len(farms))
	for _, f := range farms {
		out = append(out, toFarmResponse(f, userID))
	}
	return out
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをdstに読み込む。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// currentUser はセッションミドルウェアが注入したユーザーを返す。
// 存在しない場合は401を書き込みfalseを返す。
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	}
	return user, ok
}

// farmParams は認証済みユーザーとURLの農場IDを返す。
func farmParams(w http.ResponseWriter, r *http.Request) (*model.User, string, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return nil, "", false
	}
	return user, chi.URLParam(r, "id"), true
}

// queryInt はクエリパラメータを整数として読み取る。未指定の場合はdefを返す。
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
