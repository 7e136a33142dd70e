package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/rainfall"
)

// multipartOverhead はmultipartの境界やヘッダー分としてファイル上限に加算するバイト数。
const multipartOverhead = 64 << 10

// RainfallServiceInterface は降水記録ハンドラーが必要とするサービスインターフェース。
type RainfallServiceInterface interface {
	MaxImportSize() int64
	Import(ctx context.Context, userID, farmID, filename, contentType string, data []byte) (*rainfall.ImportResult, error)
	Create(ctx context.Context, userID, farmID, date string, amount float64) (*model.Rainfall, error)
	Delete(ctx context.Context, userID, farmID, recordID string) error
	List(ctx context.Context, userID, farmID string, year int) ([]*model.Rainfall, error)
	YearChart(ctx context.Context, userID, farmID string, year int) (*rainfall.YearChart, error)
	MonthSummary(ctx context.Context, userID, farmID string, year int, month time.Month) (*rainfall.MonthSummary, error)
}

// RainfallHandler は降水記録のHTTPハンドラー。
type RainfallHandler struct {
	service RainfallServiceInterface
	now     func() time.Time
}

// NewRainfallHandler はRainfallHandlerを生成する。
func NewRainfallHandler(service RainfallServiceInterface) *RainfallHandler {
	return &RainfallHandler{service: service, now: time.Now}
}

type createRainfallRequest struct {
	Date   string   `json:"date"`
	Amount *float64 `json:"amount"`
}

// List は降水記録を日付の降順で返す。yearを省略すると全期間。
// GET /api/farms/{id}/rainfall?year=
func (h *RainfallHandler) List(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	year, ok := queryInt(r, "year", 0)
	if !ok || year < 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	records, err := h.service.List(r.Context(), user.ID, farmID, year)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*model.Rainfall{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Create は手入力の降水記録を登録する。
// POST /api/farms/{id}/rainfall
func (h *RainfallHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	var req createRainfallRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == nil {
		middleware.WriteError(w, model.NewInvalidAmountError())
		return
	}

	rec, err := h.service.Create(r.Context(), user.ID, farmID, req.Date, *req.Amount)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Import はアップロードされたCSV/TXT/XLSX/XLSファイルから降水記録を一括登録する。
// POST /api/farms/{id}/rainfall/import (multipart, フィールド名 "file")
func (h *RainfallHandler) Import(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	maxSize := h.service.MaxImportSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, model.NewFileTooLargeError(maxSize))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if int64(len(data)) > maxSize {
		middleware.WriteError(w, model.NewFileTooLargeError(maxSize))
		return
	}

	result, err := h.service.Import(r.Context(), user.ID, farmID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stats は集計を返す。monthを指定すると月次集計、省略すると年間の月別合計。
// yearを省略すると今年（UTC）。
// GET /api/farms/{id}/rainfall/stats?year=&month=
func (h *RainfallHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	year, ok := queryInt(r, "year", h.now().UTC().Year())
	if !ok || year < 1 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	month, ok := queryInt(r, "month", 0)
	if !ok || month < 0 || month > 12 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if month == 0 {
		chart, err := h.service.YearChart(r.Context(), user.ID, farmID, year)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chart)
		return
	}

	summary, err := h.service.MonthSummary(r.Context(), user.ID, farmID, year, time.Month(month))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Delete は降水記録を削除する。
// DELETE /api/farms/{id}/rainfall/{rid}
func (h *RainfallHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), user.ID, farmID, chi.URLParam(r, "rid")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
