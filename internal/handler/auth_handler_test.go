package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/nimbo/internal/auth"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthHandler(svc *mockAuthService) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		SessionMaxAge: 86400,
	})
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// errorCode はエラーレスポンスのcodeを返す。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestAuthHandler_Signup_SetsSessionCookie(t *testing.T) {
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
			assert.Equal(t, "ana@example.com", email)
			assert.Equal(t, "secreto1", password)
			assert.Equal(t, "Ana", name)
			return &model.User{ID: "u1", Email: email, Name: name, Role: model.UserRoleUser},
				&model.Session{ID: "sess-1", UserID: "u1"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	body := `{"email":"ana@example.com","password":"secreto1","display_name":"Ana"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cookie := findCookie(resp, "session_id")
	require.NotNil(t, cookie)
	assert.Equal(t, "sess-1", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 86400, cookie.MaxAge)

	var user userResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "u1", user.ID)
	assert.False(t, user.Approved)
}

func TestAuthHandler_Signup_AcceptsLegacyNameField(t *testing.T) {
	var gotName string
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
			gotName = name
			return &model.User{ID: "u1", Email: email, Name: name}, &model.Session{ID: "s"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(`{"email":"a@b.co","password":"secreto1","name":"Beto"}`))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Beto", gotName)
}

func TestAuthHandler_Signup_InvalidJSON(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.Signup(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidRequest, errorCode(t, w))
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, model.ErrCodeInvalidCredentials, errorCode(t, w))
	assert.Nil(t, findCookie(w.Result(), "session_id"))
}

func TestAuthHandler_GoogleLogin_RedirectsWithState(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) (string, error) {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	resp := w.Result()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "accounts.google.com")

	cookie := findCookie(resp, oauthStateCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, gotState, cookie.Value)
	assert.Len(t, cookie.Value, 32)
}

func TestAuthHandler_GoogleLogin_Disabled(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) (string, error) {
			return "", auth.ErrOAuthDisabled
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.GoogleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "OAUTH_DISABLED", errorCode(t, w))
}

func TestAuthHandler_GoogleCallback_Success(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			assert.Equal(t, "auth-code", code)
			return &model.Session{ID: "sess-g", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=st", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
	w := httptest.NewRecorder()
	h.GoogleCallback(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Location"))

	session := findCookie(resp, "session_id")
	require.NotNil(t, session)
	assert.Equal(t, "sess-g", session.Value)

	state := findCookie(resp, oauthStateCookie)
	require.NotNil(t, state)
	assert.Equal(t, -1, state.MaxAge)
}

func TestAuthHandler_GoogleCallback_StateMismatch(t *testing.T) {
	called := false
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=attacker", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "original"})
	w := httptest.NewRecorder()
	h.GoogleCallback(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestAuthHandler_GoogleCallback_FailureRedirectsWithCode(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, errors.New("token exchange failed")
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=st", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st"})
	w := httptest.NewRecorder()
	h.GoogleCallback(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000/login?error=OAUTH_FAILED", resp.Header.Get("Location"))
	assert.Nil(t, findCookie(resp, "session_id"))
}

func TestAuthHandler_Logout_ClearsCookieEvenOnError(t *testing.T) {
	var gotID string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			gotID = sessionID
			return errors.New("db down")
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "sess-1", gotID)
	cookie := findCookie(resp, "session_id")
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid" {
				return &model.User{ID: "u1", Email: "ana@example.com", Name: "Ana", IsApproved: true, Role: model.UserRoleAdmin}, nil
			}
			return nil, nil
		},
	}
	h := newTestAuthHandler(svc)

	t.Run("no cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired"})
		w := httptest.NewRecorder()
		h.Me(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid"})
		w := httptest.NewRecorder()
		h.Me(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var user userResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&user))
		assert.Equal(t, userResponse{
			ID: "u1", Email: "ana@example.com", Name: "Ana", Approved: true, Role: model.UserRoleAdmin,
		}, user)
	})
}

func TestAuthHandler_RequestPasswordReset_Accepted(t *testing.T) {
	var gotEmail string
	svc := &mockAuthService{
		requestResetFn: func(ctx context.Context, email string) error {
			gotEmail = email
			return nil
		},
	}
	h := newTestAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/password/reset", strings.NewReader(`{"email":"nobody@example.com"}`))
	w := httptest.NewRecorder()
	h.RequestPasswordReset(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "nobody@example.com", gotEmail)
}

func TestAuthHandler_ConfirmPasswordReset(t *testing.T) {
	svc := &mockAuthService{
		confirmResetFn: func(ctx context.Context, token, newPassword string) error {
			if token != "good" {
				return model.NewInvalidResetTokenError()
			}
			return nil
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.ConfirmPasswordReset(w, httptest.NewRequest(http.MethodPost, "/auth/password/reset/confirm",
		strings.NewReader(`{"token":"good","password":"nueva123"}`)))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ConfirmPasswordReset(w, httptest.NewRequest(http.MethodPost, "/auth/password/reset/confirm",
		strings.NewReader(`{"token":"bad","password":"nueva123"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.ErrCodeInvalidResetToken, errorCode(t, w))
}
