package task

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/nimbo/internal/events"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
	"github.com/hitoshi/nimbo/internal/security"
)

// --- モック定義 ---

type mockTaskRepo struct {
	createFn func(ctx context.Context, t *model.Task) error
	updateFn func(ctx context.Context, t *model.Task) error
	findFn   func(ctx context.Context, farmID, id string) (*model.Task, error)
	listFn   func(ctx context.Context, farmID string, pendingOnly bool, limit int) ([]*model.Task, error)
	toggleFn func(ctx context.Context, farmID, id string) (*model.Task, error)
	deleteFn func(ctx context.Context, farmID, id string) error
}

func (m *mockTaskRepo) Create(ctx context.Context, t *model.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, t)
	}
	return nil
}

func (m *mockTaskRepo) Update(ctx context.Context, t *model.Task) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, t)
	}
	return nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, farmID, id string) (*model.Task, error) {
	if m.findFn != nil {
		return m.findFn(ctx, farmID, id)
	}
	return nil, nil
}

func (m *mockTaskRepo) ListByFarm(ctx context.Context, farmID string, pendingOnly bool, limit int) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, farmID, pendingOnly, limit)
	}
	return nil, nil
}

func (m *mockTaskRepo) Toggle(ctx context.Context, farmID, id string) (*model.Task, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, farmID, id)
	}
	return nil, nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, farmID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, farmID, id)
	}
	return nil
}

var _ repository.TaskRepository = (*mockTaskRepo)(nil)

type mockAuthz struct {
	role model.Role
}

func (m *mockAuthz) RequireMember(_ context.Context, _, _ string) (model.Role, error) {
	return m.role, nil
}

func (m *mockAuthz) RequireWriter(_ context.Context, _, _ string) (model.Role, error) {
	if !m.role.CanWrite() {
		return "", model.NewInsufficientRoleError()
	}
	return m.role, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ string, ev events.Event) {
	p.events = append(p.events, ev)
}

func newTestService(repo *mockTaskRepo, role model.Role) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	svc := NewService(repo, &mockAuthz{role: role}, security.NewTextSanitizer(), pub,
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, pub
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, code, apiErr.Code)
}

func TestCreate_DefaultsKind(t *testing.T) {
	var saved *model.Task
	svc, pub := newTestService(&mockTaskRepo{createFn: func(_ context.Context, tk *model.Task) error {
		saved = tk
		return nil
	}}, model.RoleEditor)

	tk, err := svc.Create(context.Background(), "u-1", "f-1", Input{
		Description: "Revisar <script>x</script>corral",
		DueDate:     "2024-06-10",
		SheepTag:    " A-01 ",
	})
	require.NoError(t, err)
	assert.Same(t, saved, tk)
	assert.Equal(t, model.TaskCheckup, tk.Kind)
	assert.Equal(t, "Revisar corral", tk.Description)
	assert.Equal(t, "A-01", tk.SheepTag)
	assert.Equal(t, "2024-06-10", tk.DueDate.Format("2006-01-02"))
	assert.False(t, tk.Completed)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeTasksChanged, pub.events[0].Type)
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(&mockTaskRepo{}, model.RoleOwner)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Input
	}{
		{"unknown kind", Input{Kind: "cosecha", Description: "x", DueDate: "2024-06-10"}},
		{"empty description", Input{Description: "  ", DueDate: "2024-06-10"}},
		{"bad due date", Input{Description: "x", DueDate: "10/06/2024"}},
		{"missing due date", Input{Description: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u-1", "f-1", tt.in)
			assertAPIError(t, err, model.ErrCodeInvalidTask)
		})
	}
}

func TestCreate_AllKindsAccepted(t *testing.T) {
	svc, _ := newTestService(&mockTaskRepo{}, model.RoleOwner)
	for _, k := range model.ValidTaskKinds {
		tk, err := svc.Create(context.Background(), "u-1", "f-1", Input{Kind: string(k), Description: "x", DueDate: "2024-06-10"})
		require.NoError(t, err, k)
		assert.Equal(t, k, tk.Kind)
	}
}

func TestCreate_ViewerRejected(t *testing.T) {
	svc, _ := newTestService(&mockTaskRepo{}, model.RoleViewer)

	_, err := svc.Create(context.Background(), "u-1", "f-1", Input{Description: "x", DueDate: "2024-06-10"})
	assertAPIError(t, err, model.ErrCodeInsufficientRole)
}

func TestUpdate(t *testing.T) {
	existing := &model.Task{ID: "t-1", FarmID: "f-1", Kind: model.TaskOther, Description: "old"}
	svc, _ := newTestService(&mockTaskRepo{
		findFn: func(_ context.Context, _, id string) (*model.Task, error) {
			if id == "t-1" {
				return existing, nil
			}
			return nil, nil
		},
	}, model.RoleEditor)

	tk, err := svc.Update(context.Background(), "u-1", "f-1", "t-1", Input{
		Kind: "esquila", Description: "Esquila anual", DueDate: "2024-11-01", Completed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskShearing, tk.Kind)
	assert.True(t, tk.Completed)

	_, err = svc.Update(context.Background(), "u-1", "f-1", "missing", Input{Description: "x", DueDate: "2024-11-01"})
	assertAPIError(t, err, model.ErrCodeTaskNotFound)
}

func TestToggle(t *testing.T) {
	svc, pub := newTestService(&mockTaskRepo{
		toggleFn: func(_ context.Context, _, id string) (*model.Task, error) {
			if id == "t-1" {
				return &model.Task{ID: id, Completed: true}, nil
			}
			return nil, nil
		},
	}, model.RoleEditor)

	tk, err := svc.Toggle(context.Background(), "u-1", "f-1", "t-1")
	require.NoError(t, err)
	assert.True(t, tk.Completed)
	assert.Len(t, pub.events, 1)

	_, err = svc.Toggle(context.Background(), "u-1", "f-1", "missing")
	assertAPIError(t, err, model.ErrCodeTaskNotFound)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(&mockTaskRepo{
		deleteFn: func(_ context.Context, _, id string) error {
			if id == "t-1" {
				return nil
			}
			return repository.ErrNotFound
		},
	}, model.RoleOwner)

	require.NoError(t, svc.Delete(context.Background(), "u-1", "f-1", "t-1"))
	assertAPIError(t, svc.Delete(context.Background(), "u-1", "f-1", "missing"), model.ErrCodeTaskNotFound)
}

func TestList_PendingFilter(t *testing.T) {
	var gotPending bool
	var gotLimit int
	svc, _ := newTestService(&mockTaskRepo{
		listFn: func(_ context.Context, _ string, pendingOnly bool, limit int) ([]*model.Task, error) {
			gotPending, gotLimit = pendingOnly, limit
			return []*model.Task{{ID: "t-1"}}, nil
		},
	}, model.RoleViewer)

	list, err := svc.List(context.Background(), "u-1", "f-1", true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.True(t, gotPending)
	assert.Equal(t, 0, gotLimit)
}
