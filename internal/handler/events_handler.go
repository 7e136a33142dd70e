package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/middleware"
	"github.com/hitoshi/nimbo/internal/model"
)

// DefaultKeepAlive はSSE接続のコメント送信間隔。
const DefaultKeepAlive = 25 * time.Second

// EventSubscriber はトピック購読のインターフェース。events.Hubが実装する。
type EventSubscriber interface {
	Subscribe(topic string) (<-chan events.Event, func())
}

// MemberChecker は農場メンバーであることを検証する。
type MemberChecker interface {
	RequireMember(ctx context.Context, farmID, userID string) (model.Role, error)
}

// EventsHandler は変更通知をServer-Sent Eventsで配信するHTTPハンドラー。
type EventsHandler struct {
	hub       EventSubscriber
	members   MemberChecker
	keepAlive time.Duration
}

// NewEventsHandler はEventsHandlerを生成する。keepAliveが0以下の場合はDefaultKeepAliveを使う。
func NewEventsHandler(hub EventSubscriber, members MemberChecker, keepAlive time.Duration) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &EventsHandler{hub: hub, members: members, keepAlive: keepAlive}
}

// FarmEvents は農場の変更通知を配信する。メンバーのみ購読できる。
// GET /api/farms/{id}/events
func (h *EventsHandler) FarmEvents(w http.ResponseWriter, r *http.Request) {
	user, farmID, ok := farmParams(w, r)
	if !ok {
		return
	}
	if _, err := h.members.RequireMember(r.Context(), farmID, user.ID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.stream(w, r, events.FarmTopic(farmID))
}

// InvitationEvents は自分宛の招待の作成・応答を配信する。
// GET /api/invitations/stream
func (h *EventsHandler) InvitationEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	h.stream(w, r, events.InviteeTopic(user.Email))
}

// stream はクライアントが切断するまでトピックのイベントを書き込む。
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, topic string) {
	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutを長時間接続では無効にする
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	ch, unsubscribe := h.hub.Subscribe(topic)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.Error("streaming not supported", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				slog.Debug("sse write failed",
					slog.String("topic", topic),
					slog.String("error", err.Error()),
				)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
