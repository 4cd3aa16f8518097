package domain

import (
	"fmt"
	"time"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectFinished  ProjectStatus = "Finished"
	ProjectCancelled ProjectStatus = "Cancelled"
)

func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch ProjectStatus(s) {
	case ProjectActive, ProjectFinished, ProjectCancelled:
		return ProjectStatus(s), nil
	}
	return "", fmt.Errorf("unknown project status %q", s)
}

func (s ProjectStatus) Terminal() bool {
	return s == ProjectFinished || s == ProjectCancelled
}

type Status string

const (
	StatusPending      Status = "Pending"
	StatusPushedToUser Status = "PushedToUser"
	StatusInProgress   Status = "InProgress"
	StatusQASubmitted  Status = "QASubmitted"
	StatusCompleted    Status = "Completed"
	StatusCancelled    Status = "Cancelled"
)

// ParseStatus accepts exactly the statuses above. Strings left behind by
// older deployments do not map onto the current set and must surface as
// load errors, not guesses.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPushedToUser, StatusInProgress,
		StatusQASubmitted, StatusCompleted, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown work order status %q", s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Event string

const (
	EventPush     Event = "push"
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventSubmitQA Event = "submit_qa"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
)

func ParseEvent(s string) (Event, error) {
	switch Event(s) {
	case EventPush, EventStart, EventPause, EventSubmitQA,
		EventApprove, EventReject, EventCancel:
		return Event(s), nil
	}
	return "", fmt.Errorf("unknown lifecycle event %q", s)
}

type Project struct {
	ProjectID      string        `json:"project_id"`
	ChannelID      string        `json:"channel_id"`
	Status         ProjectStatus `json:"status" enum:"Active,Finished,Cancelled"`
	Title          string        `json:"title"`
	Deliverables   string        `json:"deliverables,omitempty"`
	KPI            string        `json:"kpi,omitempty"`
	DueDate        string        `json:"due_date,omitempty"`
	AccountableID  string        `json:"accountable_id,omitempty"`
	DriveFolderURL string        `json:"drive_folder_url,omitempty"`
}

type WorkOrder struct {
	WorkOrderID      string     `json:"work_order_id"`
	ProjectID        string     `json:"project_id"`
	ThreadID         string     `json:"thread_id"`
	Status           Status     `json:"status" enum:"Pending,PushedToUser,InProgress,QASubmitted,Completed,Cancelled"`
	Title            string     `json:"title"`
	Deliverables     string     `json:"deliverables,omitempty"`
	PushedToUserID   string     `json:"pushed_to_user_id,omitempty"`
	InProgressUserID string     `json:"in_progress_user_id,omitempty"`
	QASubmittedByID  string     `json:"qa_submitted_by_id,omitempty"`
	CurrentStartTime *time.Time `json:"current_start_time,omitempty"`
	TotalTimeSeconds int64      `json:"total_time_seconds"`
}

// Running reports whether an interval is open. CurrentStartTime is set
// exactly while the order is InProgress.
func (w WorkOrder) Running() bool {
	return w.CurrentStartTime != nil
}

type AuditEvent struct {
	EventID    string `json:"event_id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json,omitempty"`
}
