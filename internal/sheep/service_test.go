package sheep

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

type mockSheepRepo struct {
	sheep      map[string]*model.Sheep
	createErr  error
	updateErr  error
	weights    []model.WeightEntry
	history    []*model.SheepHistory
	lifecycles map[string]model.Lifecycle
	tagQueries [][]string
}

func newMockRepo(list ...*model.Sheep) *mockSheepRepo {
	m := &mockSheepRepo{sheep: map[string]*model.Sheep{}, lifecycles: map[string]model.Lifecycle{}}
	for _, s := range list {
		m.sheep[s.ID] = s
	}
	return m
}

func (m *mockSheepRepo) Create(_ context.Context, s *model.Sheep) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.sheep[s.ID] = s
	return nil
}

func (m *mockSheepRepo) Update(_ context.Context, s *model.Sheep) error {
	return m.updateErr
}

func (m *mockSheepRepo) FindByID(_ context.Context, farmID, id string) (*model.Sheep, error) {
	s, ok := m.sheep[id]
	if !ok || s.FarmID != farmID {
		return nil, nil
	}
	cp := *s
	cp.Weights = append([]model.WeightEntry(nil), s.Weights...)
	return &cp, nil
}

func (m *mockSheepRepo) FindByTags(_ context.Context, farmID string, tags []string) (map[string]*model.Sheep, error) {
	m.tagQueries = append(m.tagQueries, tags)
	out := map[string]*model.Sheep{}
	for _, s := range m.sheep {
		for _, t := range tags {
			if s.FarmID == farmID && s.Tag == t {
				out[t] = s
			}
		}
	}
	return out, nil
}

func (m *mockSheepRepo) ListByFarm(_ context.Context, farmID string, includeArchived bool) ([]*model.Sheep, error) {
	var out []*model.Sheep
	for _, s := range m.sheep {
		if s.FarmID == farmID && (includeArchived || s.Lifecycle == model.LifecycleActive) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSheepRepo) AddWeight(_ context.Context, _ string, entry model.WeightEntry) error {
	m.weights = append(m.weights, entry)
	return nil
}

func (m *mockSheepRepo) SetLifecycle(_ context.Context, farmID, id string, lifecycle model.Lifecycle) error {
	s, ok := m.sheep[id]
	if !ok || s.FarmID != farmID {
		return repository.ErrNotFound
	}
	m.lifecycles[id] = lifecycle
	return nil
}

func (m *mockSheepRepo) AddHistory(_ context.Context, entry *model.SheepHistory) error {
	m.history = append(m.history, entry)
	return nil
}

func (m *mockSheepRepo) ListHistory(_ context.Context, _, _ string) ([]*model.SheepHistory, error) {
	return m.history, nil
}

func (m *mockSheepRepo) CountActive(_ context.Context, _ string) (int, int, error) {
	return 0, 0, nil
}

var _ repository.SheepRepository = (*mockSheepRepo)(nil)

type mockAuthz struct {
	role model.Role
	err  error
}

func (m *mockAuthz) RequireMember(_ context.Context, _, _ string) (model.Role, error) {
	return m.role, m.err
}

func (m *mockAuthz) RequireWriter(_ context.Context, _, _ string) (model.Role, error) {
	if m.err != nil {
		return "", m.err
	}
	if !m.role.CanWrite() {
		return "", model.NewInsufficientRoleError()
	}
	return m.role, nil
}

type recordingPublisher struct {
	topics []string
	events []events.Event
}

func (p *recordingPublisher) Publish(topic string, ev events.Event) {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
}

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockSheepRepo, role model.Role) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	svc := NewService(repo, &mockAuthz{role: role}, security.NewTextSanitizer(), pub,
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	svc.now = func() time.Time { return testNow }
	return svc, pub
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, code, apiErr.Code)
}

func floatPtr(v float64) *float64 { return &v }

// --- Create ---

func TestCreate_WithInitialWeight(t *testing.T) {
	repo := newMockRepo()
	svc, pub := newTestService(repo, model.RoleEditor)

	sh, err := svc.Create(context.Background(), "u-1", "f-1", Input{
		Tag:       "  A-01 ",
		Breed:     "<b>Merino</b>",
		BirthDate: "2023-08-15",
		Weight:    floatPtr(42.5),
	})
	require.NoError(t, err)

	assert.Equal(t, "A-01", sh.Tag)
	assert.Equal(t, "Merino", sh.Breed)
	assert.Equal(t, model.SexFemale, sh.Sex)
	assert.Equal(t, model.LifecycleActive, sh.Lifecycle)
	require.NotNil(t, sh.BirthDate)
	assert.Equal(t, "2023-08-15", sh.BirthDate.Format(dateLayout))
	require.Len(t, sh.Weights, 1)
	assert.Equal(t, 42.5, sh.Weights[0].Value)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeSheepChanged, pub.events[0].Type)
	assert.Equal(t, events.FarmTopic("f-1"), pub.topics[0])
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(newMockRepo(), model.RoleOwner)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u-1", "f-1", Input{Tag: "  "})
	assertAPIError(t, err, model.ErrCodeInvalidTag)

	_, err = svc.Create(ctx, "u-1", "f-1", Input{Tag: "A", Sex: "otro"})
	assertAPIError(t, err, model.ErrCodeInvalidSheepField)

	_, err = svc.Create(ctx, "u-1", "f-1", Input{Tag: "A", BirthDate: "15/08/2023"})
	assertAPIError(t, err, model.ErrCodeInvalidSheepField)

	_, err = svc.Create(ctx, "u-1", "f-1", Input{Tag: "A", Weight: floatPtr(0)})
	assertAPIError(t, err, model.ErrCodeInvalidWeight)
}

func TestCreate_DuplicateTag(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = repository.ErrDuplicate
	svc, _ := newTestService(repo, model.RoleOwner)

	_, err := svc.Create(context.Background(), "u-1", "f-1", Input{Tag: "A-01"})
	assertAPIError(t, err, model.ErrCodeDuplicateTag)
}

func TestCreate_ViewerRejected(t *testing.T) {
	svc, _ := newTestService(newMockRepo(), model.RoleViewer)

	_, err := svc.Create(context.Background(), "u-1", "f-1", Input{Tag: "A-01"})
	assertAPIError(t, err, model.ErrCodeInsufficientRole)
}

// --- Update ---

func existingSheep() *model.Sheep {
	return &model.Sheep{
		ID: "s-1", FarmID: "f-1", Tag: "A-01", Sex: model.SexFemale, Lifecycle: model.LifecycleActive,
		Weights: []model.WeightEntry{{Date: testNow.AddDate(0, -1, 0), Value: 40}},
	}
}

func TestUpdate_AppendsWeightOnlyWhenChanged(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc, _ := newTestService(repo, model.RoleEditor)

	sh, err := svc.Update(context.Background(), "u-1", "f-1", "s-1", Input{Tag: "A-01", Weight: floatPtr(40)})
	require.NoError(t, err)
	assert.Len(t, sh.Weights, 1)
	assert.Empty(t, repo.weights)

	sh, err = svc.Update(context.Background(), "u-1", "f-1", "s-1", Input{Tag: "A-01", Weight: floatPtr(44)})
	require.NoError(t, err)
	require.Len(t, sh.Weights, 2)
	assert.Equal(t, 44.0, sh.Weights[1].Value)
	require.Len(t, repo.weights, 1)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(newMockRepo(), model.RoleEditor)

	_, err := svc.Update(context.Background(), "u-1", "f-1", "missing", Input{Tag: "A"})
	assertAPIError(t, err, model.ErrCodeSheepNotFound)
}

func TestUpdate_DuplicateTag(t *testing.T) {
	repo := newMockRepo(existingSheep())
	repo.updateErr = repository.ErrDuplicate
	svc, _ := newTestService(repo, model.RoleEditor)

	_, err := svc.Update(context.Background(), "u-1", "f-1", "s-1", Input{Tag: "B-02"})
	assertAPIError(t, err, model.ErrCodeDuplicateTag)
}

// --- AddWeight ---

func TestAddWeight_KeepsDateOrder(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc, _ := newTestService(repo, model.RoleEditor)

	sh, err := svc.AddWeight(context.Background(), "u-1", "f-1", "s-1", WeightInput{Date: "2024-04-01", Value: 38})
	require.NoError(t, err)
	require.Len(t, sh.Weights, 2)
	assert.Equal(t, 38.0, sh.Weights[0].Value)
	assert.Equal(t, 40.0, sh.Weights[1].Value)

	latest, ok := sh.LatestWeight()
	require.True(t, ok)
	assert.Equal(t, 40.0, latest.Value)
}

func TestAddWeight_Invalid(t *testing.T) {
	svc, _ := newTestService(newMockRepo(existingSheep()), model.RoleEditor)

	_, err := svc.AddWeight(context.Background(), "u-1", "f-1", "s-1", WeightInput{Value: -1})
	assertAPIError(t, err, model.ErrCodeInvalidWeight)

	_, err = svc.AddWeight(context.Background(), "u-1", "f-1", "s-1", WeightInput{Date: "ayer", Value: 10})
	assertAPIError(t, err, model.ErrCodeInvalidSheepField)
}

// --- Archive / List ---

func TestArchive(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc, pub := newTestService(repo, model.RoleOwner)

	require.NoError(t, svc.Archive(context.Background(), "u-1", "f-1", "s-1"))
	assert.Equal(t, model.LifecycleArchived, repo.lifecycles["s-1"])
	assert.Len(t, pub.events, 1)

	err := svc.Archive(context.Background(), "u-1", "f-1", "missing")
	assertAPIError(t, err, model.ErrCodeSheepNotFound)
}

func TestList_ViewerCanRead(t *testing.T) {
	archived := &model.Sheep{ID: "s-2", FarmID: "f-1", Tag: "B", Lifecycle: model.LifecycleArchived}
	svc, _ := newTestService(newMockRepo(existingSheep(), archived), model.RoleViewer)

	list, err := svc.List(context.Background(), "u-1", "f-1", false)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(context.Background(), "u-1", "f-1", true)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// --- History ---

func TestAddHistory(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc, _ := newTestService(repo, model.RoleEditor)

	entry, err := svc.AddHistory(context.Background(), "u-1", "f-1", "s-1", HistoryInput{
		Title:  "Vacuna <i>aftosa</i>",
		Detail: "dosis 2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Vacuna aftosa", entry.Title)
	assert.Equal(t, "A-01", entry.Tag)
	assert.Equal(t, "2024-06-01", entry.Date.Format(dateLayout))

	_, err = svc.AddHistory(context.Background(), "u-1", "f-1", "s-1", HistoryInput{Title: " "})
	assertAPIError(t, err, model.ErrCodeInvalidHistoryEntry)

	list, err := svc.ListHistory(context.Background(), "u-1", "f-1", "s-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// --- Genealogy ---

func TestGenealogy_ResolvesParentsAndGrandparents(t *testing.T) {
	child := &model.Sheep{ID: "c", FarmID: "f-1", Tag: "C", MotherTag: "M", FatherTag: "F"}
	mother := &model.Sheep{ID: "m", FarmID: "f-1", Tag: "M", MotherTag: "MM", FatherTag: "MF"}
	father := &model.Sheep{ID: "f", FarmID: "f-1", Tag: "F", MotherTag: "FM"}
	mm := &model.Sheep{ID: "mm", FarmID: "f-1", Tag: "MM", Lifecycle: model.LifecycleArchived}
	fm := &model.Sheep{ID: "fm", FarmID: "f-1", Tag: "FM"}
	other := &model.Sheep{ID: "x", FarmID: "f-2", Tag: "MF"}
	repo := newMockRepo(child, mother, father, mm, fm, other)
	svc, _ := newTestService(repo, model.RoleViewer)

	g, err := svc.Genealogy(context.Background(), "u-1", "f-1", "c")
	require.NoError(t, err)

	assert.Equal(t, "M", g.Mother.Tag)
	assert.Equal(t, "F", g.Father.Tag)
	assert.Equal(t, "MM", g.MaternalGrandmother.Tag)
	assert.Nil(t, g.MaternalGrandfather, "other farms must not resolve")
	assert.Equal(t, "FM", g.PaternalGrandmother.Tag)
	assert.Nil(t, g.PaternalGrandfather)
}

func TestGenealogy_NoParentsSkipsLookups(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc, _ := newTestService(repo, model.RoleViewer)

	g, err := svc.Genealogy(context.Background(), "u-1", "f-1", "s-1")
	require.NoError(t, err)
	assert.Nil(t, g.Mother)
	assert.Nil(t, g.Father)
	assert.Empty(t, repo.tagQueries)
}

func TestGet_NonMember(t *testing.T) {
	repo := newMockRepo(existingSheep())
	svc := NewService(repo, &mockAuthz{err: model.NewFarmNotFoundError("f-1")}, security.NewTextSanitizer(), nil,
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	_, err := svc.Get(context.Background(), "u-9", "f-1", "s-1")
	assertAPIError(t, err, model.ErrCodeFarmNotFound)
}
