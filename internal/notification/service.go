package notification

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/bus"
	"github.com/eventis/backstage-api/internal/models"
	"github.com/eventis/backstage-api/internal/repository"
)

// escalationTimeout bounds a single detached email escalation run. The
// run is decoupled from the creating request's context, which may be
// cancelled long before SMTP finishes.
const escalationTimeout = 30 * time.Second

// CreateInput is the sole write-side contract workflow mutations use.
type CreateInput struct {
	Recipients models.RecipientSet
	Level      models.Level
	Message    string
	Link       string
	ProjectID  *string
}

// Service orchestrates the three delivery channels: the durable store,
// the live bus topic, and email escalation for URGENT/DEADLINE levels.
type Service interface {
	// Create persists the notification, then fans it out. A store failure
	// is logged and reported as a nil notification with a nil error:
	// delivery is best-effort relative to the workflow mutation that
	// triggered it and must never abort it. Only validation failures
	// (empty message, unknown level) return an error, before any write.
	Create(ctx context.Context, input CreateInput) (*models.Notification, error)

	ListForUser(ctx context.Context, userID string, limit int) ([]models.NotificationView, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) (models.NotificationView, error)
	MarkAllRead(ctx context.Context, userID string) error

	// Workflow trigger helpers. These are the call sites the project,
	// task and review mutations use; each is a thin Create wrapper.
	NotifyTaskAssigned(ctx context.Context, assigneeID string, task models.Task)
	NotifyProjectSubmitted(ctx context.Context, projectName string)
	NotifyStageTransition(ctx context.Context, recipientIDs []string, projectID, projectName, stage string)
	NotifyCautionRequested(ctx context.Context, managerIDs []string, projectID, projectName string)
	NotifyDeadline(ctx context.Context, recipientIDs []string, projectID *string, message, link string)

	// PublishTaskEvent pushes a task create/update onto the task topic so
	// the assignee's dashboard refreshes live. Bus only, never persisted.
	PublishTaskEvent(action string, task models.Task)

	// WaitForEscalations blocks until in-flight email escalations settle.
	// Used at shutdown so detached sends are not cut off mid-flight.
	WaitForEscalations()
}

type service struct {
	repo       repository.NotificationRepository
	users      repository.UserRepository
	bus        *bus.Bus
	dispatcher Dispatcher
	logger     zerolog.Logger

	escalations sync.WaitGroup
}

// NewService wires the store, the user directory, the event bus and the
// email dispatcher. A nil dispatcher disables escalation entirely.
func NewService(repo repository.NotificationRepository, users repository.UserRepository, eventBus *bus.Bus, dispatcher Dispatcher, logger zerolog.Logger) Service {
	return &service{
		repo:       repo,
		users:      users,
		bus:        eventBus,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Notification, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, fmt.Errorf("notification message must not be empty")
	}
	if _, err := models.ParseLevel(string(input.Level)); err != nil {
		return nil, err
	}

	recipients := input.Recipients.UserIDs()

	// The store write completes before any publish so a client can never
	// see a live event for a notification that is not yet queryable.
	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		Recipients: recipients,
		Level:      input.Level,
		Message:    input.Message,
		Link:       input.Link,
		ProjectID:  input.ProjectID,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("level", string(input.Level)).
			Int("recipients", len(recipients)).
			Msg("failed to persist notification")
		return nil, nil
	}

	switch {
	case len(notif.Recipients) > 0:
		// One event per recipient, in the order they were listed.
		for _, userID := range notif.Recipients {
			s.bus.Publish(bus.TopicNotifications, models.LiveEvent{
				Target:       userID,
				Notification: notif.ViewFor(userID),
			})
		}
	case notif.Level == models.LevelInfo:
		s.bus.Publish(bus.TopicNotifications, models.LiveEvent{
			Target:       models.TargetGlobal,
			Notification: models.NotificationView{Notification: notif},
		})
	default:
		// A targeted level with nobody listed: stored, visible to nobody
		// over live channels. Not rejected, but worth a trace.
		s.logger.Debug().
			Str("notification_id", notif.ID).
			Str("level", string(notif.Level)).
			Msg("notification has no recipients, skipping live fan-out")
	}

	if notif.Level.Escalates() && len(notif.Recipients) > 0 && s.dispatcher != nil {
		s.escalations.Add(1)
		go s.escalate(notif)
	}

	return &notif, nil
}

// escalate resolves recipient addresses and dispatches one email per
// resolvable recipient. It runs detached from the creating request: every
// failure is caught and logged here, and the only externally observable
// outcome is the best-effort emailed flag.
func (s *service) escalate(notif models.Notification) {
	defer s.escalations.Done()

	ctx, cancel := context.WithTimeout(context.Background(), escalationTimeout)
	defer cancel()

	emails, err := s.users.ResolveEmails(ctx, notif.Recipients)
	if err != nil {
		s.logger.Error().Err(err).
			Str("notification_id", notif.ID).
			Msg("failed to resolve recipient emails")
		return
	}

	attempted := 0
	for _, userID := range notif.Recipients {
		address, ok := emails[userID]
		if !ok {
			s.logger.Warn().
				Str("notification_id", notif.ID).
				Str("recipient", userID).
				Msg("no email address for recipient, skipping")
			continue
		}
		attempted++
		if err := s.dispatcher.Send(ctx, buildEscalationEmail(address, notif)); err != nil {
			s.logger.Error().Err(err).
				Str("notification_id", notif.ID).
				Str("recipient", userID).
				Str("level", string(notif.Level)).
				Msg("failed to send escalation email")
		}
	}

	// Attempted, not delivered: the flag records that dispatch ran for the
	// resolvable recipients, even if some sends failed.
	if attempted > 0 {
		if err := s.repo.SetEmailed(ctx, notif.ID); err != nil {
			s.logger.Error().Err(err).
				Str("notification_id", notif.ID).
				Msg("failed to record emailed flag")
		}
	}
}

func buildEscalationEmail(address string, notif models.Notification) Email {
	subject := fmt.Sprintf("[%s] %s", notif.Level, notif.Message)

	var text strings.Builder
	text.WriteString(notif.Message)
	text.WriteString("\n")
	if notif.Link != "" {
		text.WriteString("\n")
		text.WriteString(notif.Link)
		text.WriteString("\n")
	}

	var htmlBody strings.Builder
	htmlBody.WriteString("<p>")
	htmlBody.WriteString(html.EscapeString(notif.Message))
	htmlBody.WriteString("</p>")
	if notif.Link != "" {
		htmlBody.WriteString(fmt.Sprintf(`<p><a href="%s">Voir dans le tableau de bord</a></p>`, notif.Link))
	}

	return Email{
		To:       address,
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: htmlBody.String(),
	}
}

func (s *service) ListForUser(ctx context.Context, userID string, limit int) ([]models.NotificationView, error) {
	notifications, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]models.NotificationView, 0, len(notifications))
	for _, notif := range notifications {
		views = append(views, notif.ViewFor(userID))
	}
	return views, nil
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, notificationID, userID string) (models.NotificationView, error) {
	notif, err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return models.NotificationView{}, err
	}
	return notif.ViewFor(userID), nil
}

func (s *service) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *service) NotifyTaskAssigned(ctx context.Context, assigneeID string, task models.Task) {
	s.createQuietly(ctx, CreateInput{
		Recipients: models.Targeted(assigneeID),
		Level:      models.LevelStandard,
		Message:    fmt.Sprintf("Nouvelle tâche assignée: %q", task.Title),
		Link:       fmt.Sprintf("/projects/%s/tasks/%s", task.ProjectID, task.ID),
		ProjectID:  &task.ProjectID,
	})
}

func (s *service) NotifyProjectSubmitted(ctx context.Context, projectName string) {
	s.createQuietly(ctx, CreateInput{
		Recipients: models.Broadcast(),
		Level:      models.LevelInfo,
		Message:    fmt.Sprintf("Nouveau projet soumis: %q", projectName),
	})
}

func (s *service) NotifyStageTransition(ctx context.Context, recipientIDs []string, projectID, projectName, stage string) {
	s.createQuietly(ctx, CreateInput{
		Recipients: models.Targeted(recipientIDs...),
		Level:      models.LevelImportant,
		Message:    fmt.Sprintf("Le projet %q est passé à l'étape %q", projectName, stage),
		Link:       "/projects/" + projectID,
		ProjectID:  &projectID,
	})
}

func (s *service) NotifyCautionRequested(ctx context.Context, managerIDs []string, projectID, projectName string) {
	s.createQuietly(ctx, CreateInput{
		Recipients: models.Targeted(managerIDs...),
		Level:      models.LevelUrgent,
		Message:    fmt.Sprintf("Demande de caution pour le projet %q", projectName),
		Link:       "/projects/" + projectID,
		ProjectID:  &projectID,
	})
}

func (s *service) NotifyDeadline(ctx context.Context, recipientIDs []string, projectID *string, message, link string) {
	s.createQuietly(ctx, CreateInput{
		Recipients: models.Targeted(recipientIDs...),
		Level:      models.LevelDeadline,
		Message:    message,
		Link:       link,
		ProjectID:  projectID,
	})
}

// createQuietly is what the trigger helpers use: the originating workflow
// mutation never observes a notification failure.
func (s *service) createQuietly(ctx context.Context, input CreateInput) {
	if _, err := s.Create(ctx, input); err != nil {
		s.logger.Error().Err(err).
			Str("level", string(input.Level)).
			Msg("invalid notification input from workflow trigger")
	}
}

func (s *service) PublishTaskEvent(action string, task models.Task) {
	s.bus.Publish(bus.TopicTasks, models.TaskEvent{Action: action, Task: task})
}

func (s *service) WaitForEscalations() {
	s.escalations.Wait()
}
