package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eventis/backstage-api/internal/models"
)

// TaskRepository exposes the due-date queries the deadline scanner runs.
// Task and project CRUD itself belongs to the workflow layer.
type TaskRepository interface {
	ListTasksDueWithin(ctx context.Context, window time.Duration) ([]models.Task, error)
	ListProjectsDueWithin(ctx context.Context, window time.Duration) ([]models.Project, error)
	GetProject(ctx context.Context, projectID string) (models.Project, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) ListTasksDueWithin(ctx context.Context, window time.Duration) ([]models.Task, error) {
	const query = `
		SELECT id, project_id, title, assigned_to, done, deadline
		FROM tasks
		WHERE NOT done
		  AND deadline IS NOT NULL
		  AND deadline BETWEEN $1 AND $2`

	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, errors.Wrap(err, "list due tasks")
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(&task.ID, &task.ProjectID, &task.Title, &task.AssignedTo, &task.Done, &task.Deadline); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) ListProjectsDueWithin(ctx context.Context, window time.Duration) ([]models.Project, error) {
	const query = `
		SELECT id, name, manager_ids, done, submission_deadline
		FROM projects
		WHERE NOT done
		  AND submission_deadline IS NOT NULL
		  AND submission_deadline BETWEEN $1 AND $2`

	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, errors.Wrap(err, "list due projects")
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (r *taskRepository) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	const query = `
		SELECT id, name, manager_ids, done, submission_deadline
		FROM projects
		WHERE id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, projectID))
}

func scanProject(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Project, error) {
	var project models.Project
	var managers pq.StringArray
	if err := scanner.Scan(&project.ID, &project.Name, &managers, &project.Done, &project.SubmissionDeadline); err != nil {
		return models.Project{}, err
	}
	project.ManagerIDs = managers
	return project, nil
}
