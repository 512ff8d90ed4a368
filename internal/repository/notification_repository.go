package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eventis/backstage-api/internal/models"
)

// NotificationRepository is the durable store for notifications. All
// mutations are single-statement atomic updates so concurrent mark-read
// calls from the same user on two devices cannot lose writes.
type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	GetByID(ctx context.Context, id string) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) error
	SetEmailed(ctx context.Context, id string) error
}

type CreateNotificationParams struct {
	Recipients []string
	Level      models.Level
	Message    string
	Link       string
	ProjectID  *string
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, recipients, level, message, link, read_by, emailed, project_id, created_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	const query = `
		INSERT INTO notifications (id, recipients, level, message, link, read_by, emailed, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}', FALSE, $6, $7)
		RETURNING ` + notificationColumns

	recipients := params.Recipients
	if recipients == nil {
		recipients = []string{}
	}

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		pq.Array(recipients),
		params.Level,
		params.Message,
		params.Link,
		params.ProjectID,
		time.Now().UTC(),
	)
	notif, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "insert notification")
	}
	return notif, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (models.Notification, error) {
	const query = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1`
	return scanNotification(r.db.QueryRowContext(ctx, query, id))
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	const query = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE $1 = ANY(recipients) OR level = 'INFO'
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	return notifications, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM notifications
		WHERE ($1 = ANY(recipients) OR level = 'INFO')
		  AND NOT ($1 = ANY(read_by))`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	return count, nil
}

// MarkRead appends userID to read_by in a single statement. Re-marking an
// already-read notification is a no-op; the CASE keeps the append from
// producing duplicates under concurrent calls.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) (models.Notification, error) {
	const query = `
		UPDATE notifications
		SET read_by = CASE
			WHEN $2 = ANY(read_by) THEN read_by
			ELSE array_append(read_by, $2)
		END
		WHERE id = $1
		RETURNING ` + notificationColumns

	return scanNotification(r.db.QueryRowContext(ctx, query, id, userID))
}

// MarkAllRead acknowledges every notification visible to userID: targeted
// ones plus INFO broadcasts. Always succeeds, matching nothing included.
func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	const query = `
		UPDATE notifications
		SET read_by = array_append(read_by, $1)
		WHERE ($1 = ANY(recipients) OR level = 'INFO')
		  AND NOT ($1 = ANY(read_by))`

	_, err := r.db.ExecContext(ctx, query, userID)
	return errors.Wrap(err, "mark all notifications read")
}

// SetEmailed flips the best-effort escalation flag after dispatch was
// attempted for the resolvable recipients.
func (r *notificationRepository) SetEmailed(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET emailed = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "set notification emailed")
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var (
		notif      models.Notification
		recipients pq.StringArray
		readBy     pq.StringArray
		link       sql.NullString
		projectID  sql.NullString
	)

	if err := scanner.Scan(
		&notif.ID,
		&recipients,
		&notif.Level,
		&notif.Message,
		&link,
		&readBy,
		&notif.Emailed,
		&projectID,
		&notif.CreatedAt,
	); err != nil {
		return models.Notification{}, err
	}

	notif.Recipients = recipients
	notif.ReadBy = readBy
	if link.Valid {
		notif.Link = link.String
	}
	if projectID.Valid {
		val := projectID.String
		notif.ProjectID = &val
	}
	return notif, nil
}
