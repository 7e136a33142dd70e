package handler

import (
	"context"
	"time"

	"github.com/hitoshi/nimbo/internal/dashboard"
	"github.com/hitoshi/nimbo/internal/location"
	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/rainfall"
	"github.com/hitoshi/nimbo/internal/sheep"
	"github.com/hitoshi/nimbo/internal/task"
	"github.com/hitoshi/nimbo/internal/weather"
)

// --- 認証 ---

type mockAuthService struct {
	signupFn         func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	getLoginURLFn    func(state string) (string, error)
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	requestResetFn   func(ctx context.Context, email string) error
	confirmResetFn   func(ctx context.Context, token, newPassword string) error
}

func (m *mockAuthService) Signup(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password, name)
	}
	return nil, nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil, nil
}

func (m *mockAuthService) GetLoginURL(state string) (string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "", nil
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestResetFn != nil {
		return m.requestResetFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if m.confirmResetFn != nil {
		return m.confirmResetFn(ctx, token, newPassword)
	}
	return nil
}

// --- セッション ---

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

// --- 農場 ---

type mockFarmService struct {
	createFn        func(ctx context.Context, owner *model.User, name string) (*model.Farm, error)
	listFn          func(ctx context.Context, userID string) ([]*model.Farm, error)
	getFn           func(ctx context.Context, userID, farmID string) (*model.Farm, error)
	changeRoleFn    func(ctx context.Context, actorID, farmID, targetID string, role model.Role) error
	removeMemberFn  func(ctx context.Context, actorID, farmID, targetID string) error
	resolveActiveFn func(ctx context.Context, userID string) (*model.Farm, error)
	setActiveFn     func(ctx context.Context, userID, farmID string) (*model.Farm, error)
}

func (m *mockFarmService) CreateFarm(ctx context.Context, owner *model.User, name string) (*model.Farm, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, name)
	}
	return nil, nil
}

func (m *mockFarmService) List(ctx context.Context, userID string) ([]*model.Farm, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockFarmService) Get(ctx context.Context, userID, farmID string) (*model.Farm, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, farmID)
	}
	return nil, model.NewFarmNotFoundError(farmID)
}

func (m *mockFarmService) ChangeMemberRole(ctx context.Context, actorID, farmID, targetID string, role model.Role) error {
	if m.changeRoleFn != nil {
		return m.changeRoleFn(ctx, actorID, farmID, targetID, role)
	}
	return nil
}

func (m *mockFarmService) RemoveMember(ctx context.Context, actorID, farmID, targetID string) error {
	if m.removeMemberFn != nil {
		return m.removeMemberFn(ctx, actorID, farmID, targetID)
	}
	return nil
}

func (m *mockFarmService) ResolveActive(ctx context.Context, userID string) (*model.Farm, error) {
	if m.resolveActiveFn != nil {
		return m.resolveActiveFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockFarmService) SetActive(ctx context.Context, userID, farmID string) (*model.Farm, error) {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, userID, farmID)
	}
	return nil, nil
}

type mockInvitationService struct {
	inviteFn  func(ctx context.Context, actor *model.User, farmID, email string, role model.Role) (*model.Invitation, error)
	listFn    func(ctx context.Context, user *model.User) ([]*model.Invitation, error)
	acceptFn  func(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error)
	declineFn func(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error)
}

func (m *mockInvitationService) Invite(ctx context.Context, actor *model.User, farmID, email string, role model.Role) (*model.Invitation, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, actor, farmID, email, role)
	}
	return &model.Invitation{}, nil
}

func (m *mockInvitationService) ListPending(ctx context.Context, user *model.User) ([]*model.Invitation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user)
	}
	return nil, nil
}

func (m *mockInvitationService) Accept(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error) {
	if m.acceptFn != nil {
		return m.acceptFn(ctx, user, inviteID)
	}
	return &model.Invitation{ID: inviteID, Status: model.InvitationAccepted}, nil
}

func (m *mockInvitationService) Decline(ctx context.Context, user *model.User, inviteID string) (*model.Invitation, error) {
	if m.declineFn != nil {
		return m.declineFn(ctx, user, inviteID)
	}
	return &model.Invitation{ID: inviteID, Status: model.InvitationDeclined}, nil
}

type mockMemberChecker struct {
	members map[string]model.Role // キーは farmID + "/" + userID
}

func (m *mockMemberChecker) RequireMember(ctx context.Context, farmID, userID string) (model.Role, error) {
	role, ok := m.members[farmID+"/"+userID]
	if !ok {
		return "", model.NewFarmNotFoundError(farmID)
	}
	return role, nil
}

// --- 記録 ---

type mockRainfallService struct {
	maxSize        int64
	importFn       func(ctx context.Context, userID, farmID, filename, contentType string, data []byte) (*rainfall.ImportResult, error)
	createFn       func(ctx context.Context, userID, farmID, date string, amount float64) (*model.Rainfall, error)
	deleteFn       func(ctx context.Context, userID, farmID, recordID string) error
	listFn         func(ctx context.Context, userID, farmID string, year int) ([]*model.Rainfall, error)
	yearChartFn    func(ctx context.Context, userID, farmID string, year int) (*rainfall.YearChart, error)
	monthSummaryFn func(ctx context.Context, userID, farmID string, year int, month time.Month) (*rainfall.MonthSummary, error)
}

func (m *mockRainfallService) MaxImportSize() int64 {
	if m.maxSize > 0 {
		return m.maxSize
	}
	return rainfall.DefaultMaxImportSize
}

func (m *mockRainfallService) Import(ctx context.Context, userID, farmID, filename, contentType string, data []byte) (*rainfall.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, userID, farmID, filename, contentType, data)
	}
	return &rainfall.ImportResult{}, nil
}

func (m *mockRainfallService) Create(ctx context.Context, userID, farmID, date string, amount float64) (*model.Rainfall, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, farmID, date, amount)
	}
	return &model.Rainfall{}, nil
}

func (m *mockRainfallService) Delete(ctx context.Context, userID, farmID, recordID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, farmID, recordID)
	}
	return nil
}

func (m *mockRainfallService) List(ctx context.Context, userID, farmID string, year int) ([]*model.Rainfall, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, farmID, year)
	}
	return nil, nil
}

func (m *mockRainfallService) YearChart(ctx context.Context, userID, farmID string, year int) (*rainfall.YearChart, error) {
	if m.yearChartFn != nil {
		return m.yearChartFn(ctx, userID, farmID, year)
	}
	return &rainfall.YearChart{Year: year}, nil
}

func (m *mockRainfallService) MonthSummary(ctx context.Context, userID, farmID string, year int, month time.Month) (*rainfall.MonthSummary, error) {
	if m.monthSummaryFn != nil {
		return m.monthSummaryFn(ctx, userID, farmID, year, month)
	}
	return &rainfall.MonthSummary{Year: year, Month: int(month)}, nil
}

type mockSheepService struct {
	createFn      func(ctx context.Context, userID, farmID string, in sheep.Input) (*model.Sheep, error)
	updateFn      func(ctx context.Context, userID, farmID, sheepID string, in sheep.Input) (*model.Sheep, error)
	addWeightFn   func(ctx context.Context, userID, farmID, sheepID string, in sheep.WeightInput) (*model.Sheep, error)
	getFn         func(ctx context.Context, userID, farmID, sheepID string) (*model.Sheep, error)
	listFn        func(ctx context.Context, userID, farmID string, includeArchived bool) ([]*model.Sheep, error)
	archiveFn     func(ctx context.Context, userID, farmID, sheepID string) error
	addHistoryFn  func(ctx context.Context, userID, farmID, sheepID string, in sheep.HistoryInput) (*model.SheepHistory, error)
	listHistoryFn func(ctx context.Context, userID, farmID, sheepID string) ([]*model.SheepHistory, error)
	genealogyFn   func(ctx context.Context, userID, farmID, sheepID string) (*sheep.Genealogy, error)
}

func (m *mockSheepService) Create(ctx context.Context, userID, farmID string, in sheep.Input) (*model.Sheep, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, farmID, in)
	}
	return &model.Sheep{Tag: in.Tag}, nil
}

func (m *mockSheepService) Update(ctx context.Context, userID, farmID, sheepID string, in sheep.Input) (*model.Sheep, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, farmID, sheepID, in)
	}
	return &model.Sheep{ID: sheepID, Tag: in.Tag}, nil
}

func (m *mockSheepService) AddWeight(ctx context.Context, userID, farmID, sheepID string, in sheep.WeightInput) (*model.Sheep, error) {
	if m.addWeightFn != nil {
		return m.addWeightFn(ctx, userID, farmID, sheepID, in)
	}
	return &model.Sheep{ID: sheepID}, nil
}

func (m *mockSheepService) Get(ctx context.Context, userID, farmID, sheepID string) (*model.Sheep, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, farmID, sheepID)
	}
	return &model.Sheep{ID: sheepID}, nil
}

func (m *mockSheepService) List(ctx context.Context, userID, farmID string, includeArchived bool) ([]*model.Sheep, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, farmID, includeArchived)
	}
	return nil, nil
}

func (m *mockSheepService) Archive(ctx context.Context, userID, farmID, sheepID string) error {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, userID, farmID, sheepID)
	}
	return nil
}

func (m *mockSheepService) AddHistory(ctx context.Context, userID, farmID, sheepID string, in sheep.HistoryInput) (*model.SheepHistory, error) {
	if m.addHistoryFn != nil {
		return m.addHistoryFn(ctx, userID, farmID, sheepID, in)
	}
	return &model.SheepHistory{SheepID: sheepID, Title: in.Title}, nil
}

func (m *mockSheepService) ListHistory(ctx context.Context, userID, farmID, sheepID string) ([]*model.SheepHistory, error) {
	if m.listHistoryFn != nil {
		return m.listHistoryFn(ctx, userID, farmID, sheepID)
	}
	return nil, nil
}

func (m *mockSheepService) Genealogy(ctx context.Context, userID, farmID, sheepID string) (*sheep.Genealogy, error) {
	if m.genealogyFn != nil {
		return m.genealogyFn(ctx, userID, farmID, sheepID)
	}
	return &sheep.Genealogy{Sheep: &model.Sheep{ID: sheepID}}, nil
}

type mockTaskService struct {
	createFn func(ctx context.Context, userID, farmID string, in task.Input) (*model.Task, error)
	updateFn func(ctx context.Context, userID, farmID, taskID string, in task.Input) (*model.Task, error)
	toggleFn func(ctx context.Context, userID, farmID, taskID string) (*model.Task, error)
	deleteFn func(ctx context.Context, userID, farmID, taskID string) error
	listFn   func(ctx context.Context, userID, farmID string, pendingOnly bool) ([]*model.Task, error)
}

func (m *mockTaskService) Create(ctx context.Context, userID, farmID string, in task.Input) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, farmID, in)
	}
	return &model.Task{Description: in.Description}, nil
}

func (m *mockTaskService) Update(ctx context.Context, userID, farmID, taskID string, in task.Input) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, farmID, taskID, in)
	}
	return &model.Task{ID: taskID, Description: in.Description}, nil
}

func (m *mockTaskService) Toggle(ctx context.Context, userID, farmID, taskID string) (*model.Task, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, userID, farmID, taskID)
	}
	return &model.Task{ID: taskID, Completed: true}, nil
}

func (m *mockTaskService) Delete(ctx context.Context, userID, farmID, taskID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, farmID, taskID)
	}
	return nil
}

func (m *mockTaskService) List(ctx context.Context, userID, farmID string, pendingOnly bool) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, farmID, pendingOnly)
	}
	return nil, nil
}

type mockDashboardService struct {
	summaryFn func(ctx context.Context, userID, farmID string) (*dashboard.Summary, error)
}

func (m *mockDashboardService) Summary(ctx context.Context, userID, farmID string) (*dashboard.Summary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, userID, farmID)
	}
	return &dashboard.Summary{FarmID: farmID, UpcomingTasks: []*model.Task{}}, nil
}

// --- 設定・外部サービス ---

type mockLocationService struct {
	getFn   func(ctx context.Context, userID string) (*location.Preference, error)
	saveFn  func(ctx context.Context, userID string, in location.SaveInput) (*location.Preference, error)
	clearFn func(ctx context.Context, userID string) error
}

func (m *mockLocationService) Get(ctx context.Context, userID string) (*location.Preference, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &location.Preference{IsDefault: true}, nil
}

func (m *mockLocationService) Save(ctx context.Context, userID string, in location.SaveInput) (*location.Preference, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, userID, in)
	}
	return &location.Preference{}, nil
}

func (m *mockLocationService) Clear(ctx context.Context, userID string) error {
	if m.clearFn != nil {
		return m.clearFn(ctx, userID)
	}
	return nil
}

type mockWeatherService struct {
	currentFn  func(ctx context.Context, userID string) (*weather.Current, error)
	forecastFn func(ctx context.Context, userID string) (*weather.Forecast, error)
}

func (m *mockWeatherService) Current(ctx context.Context, userID string) (*weather.Current, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, userID)
	}
	return &weather.Current{}, nil
}

func (m *mockWeatherService) Forecast(ctx context.Context, userID string) (*weather.Forecast, error) {
	if m.forecastFn != nil {
		return m.forecastFn(ctx, userID)
	}
	return &weather.Forecast{}, nil
}

type mockMailer struct {
	sendWelcomeFn func(ctx context.Context, email, name string) error
}

func (m *mockMailer) SendWelcome(ctx context.Context, email, name string) error {
	if m.sendWelcomeFn != nil {
		return m.sendWelcomeFn(ctx, email, name)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}
