package models

import "time"

// Task is the slice of the workflow layer's task entity the notification
// core needs: enough to drive the deadline scan and the live task topic.
type Task struct {
	ID         string     `json:"id" db:"id"`
	ProjectID  string     `json:"project_id" db:"project_id"`
	Title      string     `json:"title" db:"title"`
	AssignedTo string     `json:"assigned_to" db:"assigned_to"`
	Done       bool       `json:"done" db:"done"`
	Deadline   *time.Time `json:"deadline,omitempty" db:"deadline"`
}

// Project carries the submission deadline and the managers who must be
// warned when it approaches. No referential integrity is enforced from
// notifications back to projects.
type Project struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	ManagerIDs         []string   `json:"manager_ids" db:"manager_ids"`
	Done               bool       `json:"done" db:"done"`
	SubmissionDeadline *time.Time `json:"submission_deadline,omitempty" db:"submission_deadline"`
}

// TaskEvent is published on the task topic when a task is created or
// updated, and reaches only the connection of the assignee.
type TaskEvent struct {
	Action string `json:"action"`
	Task   Task   `json:"task"`
}
