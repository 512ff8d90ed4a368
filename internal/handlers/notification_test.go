package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventis/backstage-api/internal/authz"
	"github.com/eventis/backstage-api/internal/models"
	"github.com/eventis/backstage-api/internal/notification"
)

// stubService returns canned values so handler behavior can be tested
// without a store or bus.
type stubService struct {
	views       []models.NotificationView
	unread      int
	markReadErr error
	created     *notification.CreateInput
	createErr   error
}

func (s *stubService) Create(_ context.Context, input notification.CreateInput) (*models.Notification, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = &input
	return &models.Notification{ID: "n1", Level: input.Level, Message: input.Message}, nil
}

func (s *stubService) ListForUser(context.Context, string, int) ([]models.NotificationView, error) {
	return s.views, nil
}

func (s *stubService) UnreadCount(context.Context, string) (int, error) { return s.unread, nil }

func (s *stubService) MarkRead(_ context.Context, notificationID, userID string) (models.NotificationView, error) {
	if s.markReadErr != nil {
		return models.NotificationView{}, s.markReadErr
	}
	return models.NotificationView{
		Notification: models.Notification{ID: notificationID, ReadBy: []string{userID}},
		IsRead:       true,
	}, nil
}

func (s *stubService) MarkAllRead(context.Context, string) error { return nil }

func (s *stubService) NotifyTaskAssigned(context.Context, string, models.Task) {}

func (s *stubService) NotifyProjectSubmitted(context.Context, string) {}

func (s *stubService) NotifyStageTransition(context.Context, []string, string, string, string) {}

func (s *stubService) NotifyCautionRequested(context.Context, []string, string, string) {}

func (s *stubService) NotifyDeadline(context.Context, []string, *string, string, string) {}

func (s *stubService) PublishTaskEvent(string, models.Task) {}

func (s *stubService) WaitForEscalations() {}

func authenticated(r *http.Request, userID string, roles ...models.UserRole) *http.Request {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleMember}
	}
	return r.WithContext(authz.WithIdentity(r.Context(), userID, roles))
}

func TestList_RequiresIdentity(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestList_ReturnsViews(t *testing.T) {
	t.Parallel()
	stub := &stubService{
		views: []models.NotificationView{
			{Notification: models.Notification{ID: "n1", Level: models.LevelInfo, Message: "hello"}},
		},
	}
	h := NewNotificationHandler(stub, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodGet, "/api/notifications?limit=10", nil), "u1")
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Notifications []models.NotificationView `json:"notifications"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "n1", body.Notifications[0].ID)
}

func TestUnreadCount(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{unread: 4}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil), "u1")
	h.UnreadCount(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":4}`, rec.Body.String())
}

func TestMarkRead_NotFound(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{markReadErr: sql.ErrNoRows}, zerolog.Nop())

	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications/missing/read", nil), "u1")
	req = mux.SetURLVars(req, map[string]string{"notificationID": "missing"})

	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkRead_ReturnsUpdatedView(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{}, zerolog.Nop())

	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications/n1/read", nil), "u1")
	req = mux.SetURLVars(req, map[string]string{"notificationID": "n1"})

	rec := httptest.NewRecorder()
	h.MarkRead(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.NotificationView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.True(t, view.IsRead)
	assert.Equal(t, []string{"u1"}, view.ReadBy)
}

func TestMarkAllRead(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil), "u1")
	h.MarkAllRead(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestCreate_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	h := NewNotificationHandler(&stubService{}, zerolog.Nop())

	body := strings.NewReader(`{"level":"LOUD","message":"x"}`)
	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications", body), "admin", models.RoleAdmin)
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_InfoWithoutRecipientsBecomesBroadcast(t *testing.T) {
	t.Parallel()
	stub := &stubService{}
	h := NewNotificationHandler(stub, zerolog.Nop())

	body := strings.NewReader(`{"level":"INFO","message":"Nouveau projet soumis"}`)
	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications", body), "admin", models.RoleAdmin)
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, stub.created)
	assert.True(t, stub.created.Recipients.IsBroadcast())
}

func TestCreate_ValidationErrorFromService(t *testing.T) {
	t.Parallel()
	stub := &stubService{createErr: fmt.Errorf("notification message must not be empty")}
	h := NewNotificationHandler(stub, zerolog.Nop())

	body := strings.NewReader(`{"level":"STANDARD","message":"","user_ids":["u1"]}`)
	rec := httptest.NewRecorder()
	req := authenticated(httptest.NewRequest(http.MethodPost, "/api/notifications", body), "admin", models.RoleAdmin)
	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
