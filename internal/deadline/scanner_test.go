package deadline

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventis/backstage-api/internal/models"
	"github.com/eventis/backstage-api/internal/notification"
)

type fakeTaskRepo struct {
	tasks    []models.Task
	projects map[string]models.Project
	due      []models.Project
}

func (f *fakeTaskRepo) ListTasksDueWithin(context.Context, time.Duration) ([]models.Task, error) {
	return f.tasks, nil
}

func (f *fakeTaskRepo) ListProjectsDueWithin(context.Context, time.Duration) ([]models.Project, error) {
	return f.due, nil
}

func (f *fakeTaskRepo) GetProject(_ context.Context, projectID string) (models.Project, error) {
	project, ok := f.projects[projectID]
	if !ok {
		return models.Project{}, sql.ErrNoRows
	}
	return project, nil
}

type deadlineCall struct {
	recipients []string
	projectID  *string
	message    string
	link       string
}

// recordingService stubs the notification service; only the deadline
// trigger matters to the scanner.
type recordingService struct {
	mu    sync.Mutex
	calls []deadlineCall
}

func (r *recordingService) Create(context.Context, notification.CreateInput) (*models.Notification, error) {
	return nil, nil
}

func (r *recordingService) ListForUser(context.Context, string, int) ([]models.NotificationView, error) {
	return nil, nil
}

func (r *recordingService) UnreadCount(context.Context, string) (int, error) { return 0, nil }

func (r *recordingService) MarkRead(context.Context, string, string) (models.NotificationView, error) {
	return models.NotificationView{}, nil
}

func (r *recordingService) MarkAllRead(context.Context, string) error { return nil }

func (r *recordingService) NotifyTaskAssigned(context.Context, string, models.Task) {}

func (r *recordingService) NotifyProjectSubmitted(context.Context, string) {}

func (r *recordingService) NotifyStageTransition(context.Context, []string, string, string, string) {}

func (r *recordingService) NotifyCautionRequested(context.Context, []string, string, string) {}

func (r *recordingService) NotifyDeadline(_ context.Context, recipientIDs []string, projectID *string, message, link string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, deadlineCall{
		recipients: recipientIDs,
		projectID:  projectID,
		message:    message,
		link:       link,
	})
}

func (r *recordingService) PublishTaskEvent(string, models.Task) {}

func (r *recordingService) WaitForEscalations() {}

func TestScan_WarnsAssigneeAndManagersForDueTasks(t *testing.T) {
	t.Parallel()

	repo := &fakeTaskRepo{
		tasks: []models.Task{
			{ID: "t1", ProjectID: "p1", Title: "Montage scène", AssignedTo: "u1"},
		},
		projects: map[string]models.Project{
			"p1": {ID: "p1", Name: "Festival", ManagerIDs: []string{"m1", "u1"}},
		},
	}
	recorder := &recordingService{}
	scanner := NewScanner(repo, recorder, "@daily", zerolog.Nop())

	scanner.Scan(context.Background())

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	// Assignee first, managers appended without duplicating the assignee.
	assert.Equal(t, []string{"u1", "m1"}, call.recipients)
	require.NotNil(t, call.projectID)
	assert.Equal(t, "p1", *call.projectID)
	assert.Contains(t, call.message, "Montage scène")
	assert.Equal(t, "/projects/p1/tasks/t1", call.link)
}

func TestScan_WarnsManagersForDueProjects(t *testing.T) {
	t.Parallel()

	repo := &fakeTaskRepo{
		due: []models.Project{
			{ID: "p2", Name: "Tournée", ManagerIDs: []string{"m1", "m2"}},
		},
	}
	recorder := &recordingService{}
	scanner := NewScanner(repo, recorder, "@daily", zerolog.Nop())

	scanner.Scan(context.Background())

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	assert.Equal(t, []string{"m1", "m2"}, call.recipients)
	assert.Contains(t, call.message, "Tournée")
	assert.Equal(t, "/projects/p2", call.link)
}

func TestScan_MissingProjectStillWarnsAssignee(t *testing.T) {
	t.Parallel()

	repo := &fakeTaskRepo{
		tasks: []models.Task{
			{ID: "t1", ProjectID: "gone", Title: "Relance", AssignedTo: "u1"},
		},
		projects: map[string]models.Project{},
	}
	recorder := &recordingService{}
	scanner := NewScanner(repo, recorder, "@daily", zerolog.Nop())

	scanner.Scan(context.Background())

	require.Len(t, recorder.calls, 1)
	assert.Equal(t, []string{"u1"}, recorder.calls[0].recipients)
}

func TestScan_NothingDueIsQuiet(t *testing.T) {
	t.Parallel()

	recorder := &recordingService{}
	scanner := NewScanner(&fakeTaskRepo{}, recorder, "@daily", zerolog.Nop())

	scanner.Scan(context.Background())
	assert.Empty(t, recorder.calls)
}
