package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/nimbo/internal/location"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/weather"
)

// LocationServiceInterface は位置情報設定のサービスインターフェース。
type LocationServiceInterface interface {
	Get(ctx context.Context, userID string) (*location.Preference, error)
	Save(ctx context.Context, userID string, in location.SaveInput) (*location.Preference, error)
	Clear(ctx context.Context, userID string) error
}

// WeatherServiceInterface は天気情報のサービスインターフェース。
type WeatherServiceInterface interface {
	Current(ctx context.Context, userID string) (*weather.Current, error)
	Forecast(ctx context.Context, userID string) (*weather.Forecast, error)
}

// WelcomeMailer は登録完了メールの送信インターフェース。
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, email, name string) error
}

// SettingsHandler はユーザー設定、天気、メール送信のHTTPハンドラー。
type SettingsHandler struct {
	location LocationServiceInterface
	weather  WeatherServiceInterface
	mailer   WelcomeMailer
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(loc LocationServiceInterface, wx WeatherServiceInterface, mailer WelcomeMailer) *SettingsHandler {
	return &SettingsHandler{location: loc, weather: wx, mailer: mailer}
}

type welcomeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GetLocation は保存済みの位置情報を返す。未設定の場合は既定の座標を返す。
// GET /api/settings/location
func (h *SettingsHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	pref, err := h.location.Get(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// SaveLocation は座標または地図URLから位置情報を保存する。
// PUT /api/settings/location
func (h *SettingsHandler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in location.SaveInput
	if !decodeJSON(w, r, &in) {
		return
	}

	pref, err := h.location.Save(r.Context(), user.ID, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// ClearLocation は位置情報を削除する。
// DELETE /api/settings/location
func (h *SettingsHandler) ClearLocation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.location.Clear(r.Context(), user.ID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CurrentWeather は保存済み位置の現在の天気を返す。
// GET /api/weather/current
func (h *SettingsHandler) CurrentWeather(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	current, err := h.weather.Current(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// Forecast は保存済み位置の日別予報と降水見込みを返す。
// GET /api/weather/forecast
func (h *SettingsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	forecast, err := h.weather.Forecast(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

// Welcome は登録完了メールを送信する。POST以外は405を返す。
// POST /api/email/welcome
func (h *SettingsHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "このメソッドは許可されていません。",
			Category: "validation",
			Action:   "POSTで送信してください。",
		})
		return
	}

	var req welcomeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.mailer.SendWelcome(r.Context(), req.Email, req.Name); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
