package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/nimbo/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponseBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrorResponseBody{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	}, body)
}

func TestStatusFor_Taxonomy(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewInvalidFarmNameError(), http.StatusBadRequest},
		{model.NewNoValidRowsError(), http.StatusUnprocessableEntity},
		{model.NewFileTooLargeError(10), http.StatusRequestEntityTooLarge},
		{model.NewNotFarmOwnerError(), http.StatusForbidden},
		{model.NewOwnerImmutableError(), http.StatusForbidden},
		{model.NewInsufficientRoleError(), http.StatusForbidden},
		{model.NewPendingApprovalError(), http.StatusForbidden},
		{model.NewFarmNotFoundError("f"), http.StatusNotFound},
		{model.NewMemberNotFoundError("u"), http.StatusNotFound},
		{model.NewInvitationNotFoundError("i"), http.StatusNotFound},
		{model.NewInvitationResolvedError(), http.StatusConflict},
		{model.NewStaleMembershipError(), http.StatusConflict},
		{model.NewEmailTakenError(), http.StatusConflict},
		{model.NewDuplicateTagError("A"), http.StatusConflict},
		{model.NewWeatherUnavailableError(), http.StatusBadGateway},
		{model.NewEmailNotConfiguredError(), http.StatusInternalServerError},
		{model.NewEmailFailedError(), http.StatusBadGateway},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{&model.APIError{Code: "SOMETHING_NEW"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("wrapped APIError keeps its status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, fmt.Errorf("context: %w", model.NewSheepNotFoundError("s-1")))

		assert.Equal(t, http.StatusNotFound, w.Code)
		var body ErrorResponseBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, model.ErrCodeSheepNotFound, body.Code)
	})

	t.Run("plain error becomes 500 without details", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
		var body ErrorResponseBody
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "INTERNAL_ERROR", body.Code)
		assert.Equal(t, "system", body.Category)
	})
}
