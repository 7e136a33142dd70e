package farm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/model"
)

type mockFarmRepo struct {
	createFn     func(ctx context.Context, farm *model.Farm) error
	findByIDFn   func(ctx context.Context, id string) (*model.Farm, error)
	listFn       func(ctx context.Context, userID string) ([]*model.Farm, error)
	findMemberFn func(ctx context.Context, farmID, userID string) (*model.Member, error)
	updateRoleFn func(ctx context.Context, farmID, actorID, targetID string, role model.Role) error
	removeFn     func(ctx context.Context, farmID, actorID, targetID string) error
}

func (m *mockFarmRepo) CreateWithOwner(ctx context.Context, farm *model.Farm) error {
	if m.createFn != nil {
		return m.createFn(ctx, farm)
	}
	return nil
}

func (m *mockFarmRepo) FindByID(ctx context.Context, id string) (*model.Farm, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockFarmRepo) ListByMember(ctx context.Context, userID string) ([]*model.Farm, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockFarmRepo) FindMember(ctx context.Context, farmID, userID string) (*model.Member, error) {
	if m.findMemberFn != nil {
		return m.findMemberFn(ctx, farmID, userID)
	}
	return nil, nil
}

func (m *mockFarmRepo) UpdateMemberRole(ctx context.Context, farmID, actorID, targetID string, role model.Role) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, farmID, actorID, targetID, role)
	}
	return nil
}

func (m *mockFarmRepo) RemoveMember(ctx context.Context, farmID, actorID, targetID string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, farmID, actorID, targetID)
	}
	return nil
}

type mockSettingsRepo struct {
	settings *model.UserSettings
	getErr   error
	saved    []string
	saveErr  error
}

func (m *mockSettingsRepo) Get(_ context.Context, _ string) (*model.UserSettings, error) {
	return m.settings, m.getErr
}

func (m *mockSettingsRepo) SaveLocation(_ context.Context, _ string, _ []byte) error {
	return nil
}

func (m *mockSettingsRepo) SaveSelectedFarm(_ context.Context, _, farmID string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, farmID)
	return nil
}

type recordingPublisher struct {
	topics []string
	events []events.Event
}

func (p *recordingPublisher) Publish(topic string, ev events.Event) {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, code, apiErr.Code)
}

// sampleFarm はowner/editor/viewerの3名が所属する農場を返す。
func sampleFarm() *model.Farm {
	return &model.Farm{
		ID:      "f-1",
		Name:    "La Esperanza",
		OwnerID: "owner",
		Members: map[string]model.Member{
			"owner":  {UserID: "owner", Role: model.RoleOwner},
			"editor": {UserID: "editor", Role: model.RoleEditor},
			"viewer": {UserID: "viewer", Role: model.RoleViewer},
		},
	}
}
