// Package events はプロセス内のトピック購読ハブを提供する。
// 農場やユーザー単位の変更通知をSSE接続へ配信するために使う。
package events

import (
	"strings"
	"sync"
	"time"
)

// イベント種別。
const (
	TypeRainfallChanged    = "rainfall.changed"
	TypeMembersChanged     = "farm.members_changed"
	TypeSheepChanged       = "sheep.changed"
	TypeTasksChanged       = "tasks.changed"
	TypeInvitationCreated  = "invitation.created"
	TypeInvitationResolved = "invitation.resolved"
)

// defaultBufferSize は購読チャネルのバッファサイズ。
const defaultBufferSize = 16

// Event はトピックに配信される変更通知を表す。
type Event struct {
	Type   string    `json:"type"`
	FarmID string    `json:"farm_id,omitempty"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

// FarmTopic は農場の変更通知トピック名を返す。
func FarmTopic(farmID string) string {
	return "farm:" + farmID
}

// InviteeTopic は招待先メールアドレス宛の通知トピック名を返す。
func InviteeTopic(email string) string {
	return "invitee:" + strings.ToLower(strings.TrimSpace(email))
}

// Publisher はイベント発行のインターフェース。
type Publisher interface {
	Publish(topic string, ev Event)
}

// Hub はトピック単位のファンアウトを行う。
// 受信側が詰まっている場合、そのイベントは破棄され送信側はブロックしない。
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscriber]struct{}
	closed     bool
	bufferSize int
	now        func() time.Time
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// NewHub は新しいHubを生成する。
func NewHub() *Hub {
	return &Hub{
		subs:       make(map[string]map[*subscriber]struct{}),
		bufferSize: defaultBufferSize,
		now:        time.Now,
	}
}

// Subscribe はトピックを購読し、受信チャネルと購読解除関数を返す。
// 購読解除関数は何度呼んでもよく、呼ぶとチャネルはcloseされる。
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs[topic], sub)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Publish はトピックの全購読者にイベントを配信する。
func (h *Hub) Publish(topic string, ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[topic] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close は全購読者のチャネルをcloseし、以降の購読を即座に終了させる。
// サーバー停止時にSSEストリームを切断するために使う。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, topic)
	}
}

// SubscriberCount はトピックの購読者数を返す。
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

var _ Publisher = (*Hub)(nil)
