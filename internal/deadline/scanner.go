// Package deadline implements the periodic trigger that warns assignees
// and project managers about work due within the next 24 hours. The
// scanner owns scheduling only; what happens to each warning is entirely
// the notification service's contract.
package deadline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"

	"github.com/eventis/backstage-api/internal/notification"
	"github.com/eventis/backstage-api/internal/repository"
)

// window is how far ahead the scan looks for due tasks and projects.
const window = 24 * time.Hour

type Scanner struct {
	tasks         repository.TaskRepository
	notifications notification.Service
	schedule      string
	cron          *cron.Cron
	logger        zerolog.Logger
}

func NewScanner(tasks repository.TaskRepository, notifications notification.Service, schedule string, logger zerolog.Logger) *Scanner {
	if schedule == "" {
		schedule = "@daily"
	}
	return &Scanner{
		tasks:         tasks,
		notifications: notifications,
		schedule:      schedule,
		logger:        logger.With().Str("component", "deadline_scanner").Logger(),
	}
}

// Start registers the daily scan on the cron schedule, pinned to the
// deployment's local time zone, and begins running it.
func (s *Scanner) Start() error {
	s.cron = cron.New()
	if err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Scan(ctx)
	}); err != nil {
		return fmt.Errorf("register deadline scan schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("deadline scanner started")
	return nil
}

func (s *Scanner) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Scan runs one pass: every not-done task due within the window warns its
// assignee plus the project managers, and every project whose submission
// deadline falls within the window warns its managers. Failures are
// logged and never abort the rest of the pass.
func (s *Scanner) Scan(ctx context.Context) {
	dueTasks, err := s.tasks.ListTasksDueWithin(ctx, window)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due tasks")
	}
	for _, task := range dueTasks {
		recipients := []string{task.AssignedTo}
		if project, err := s.tasks.GetProject(ctx, task.ProjectID); err == nil {
			recipients = appendMissing(recipients, project.ManagerIDs)
		} else {
			s.logger.Warn().Err(err).
				Str("task_id", task.ID).
				Str("project_id", task.ProjectID).
				Msg("could not load project for due task")
		}

		projectID := task.ProjectID
		s.notifications.NotifyDeadline(ctx, recipients, &projectID,
			fmt.Sprintf("La tâche %q arrive à échéance dans moins de 24 heures", task.Title),
			fmt.Sprintf("/projects/%s/tasks/%s", task.ProjectID, task.ID),
		)
	}

	dueProjects, err := s.tasks.ListProjectsDueWithin(ctx, window)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list due projects")
	}
	for _, project := range dueProjects {
		projectID := project.ID
		s.notifications.NotifyDeadline(ctx, project.ManagerIDs, &projectID,
			fmt.Sprintf("La date limite de soumission du projet %q est dans moins de 24 heures", project.Name),
			"/projects/"+project.ID,
		)
	}

	s.logger.Info().
		Int("due_tasks", len(dueTasks)).
		Int("due_projects", len(dueProjects)).
		Msg("deadline scan complete")
}

func appendMissing(base []string, extra []string) []string {
	for _, id := range extra {
		found := false
		for _, existing := range base {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			base = append(base, id)
		}
	}
	return base
}
