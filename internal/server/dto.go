package server

import (
	"encoding/json"
	"time"

	"orderline/internal/domain"
	"orderline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID             *string `json:"id,omitempty"`
	ChannelID      string  `json:"channel_id"`
	Title          string  `json:"title"`
	Deliverables   *string `json:"deliverables,omitempty"`
	KPI            *string `json:"kpi,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
	AccountableID  *string `json:"accountable_id,omitempty"`
	DriveFolderURL *string `json:"drive_folder_url,omitempty"`
}

type UpdateProjectRequest struct {
	ChannelID      *string `json:"channel_id,omitempty"`
	Title          *string `json:"title,omitempty"`
	Deliverables   *string `json:"deliverables,omitempty"`
	KPI            *string `json:"kpi,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
	AccountableID  *string `json:"accountable_id,omitempty"`
	DriveFolderURL *string `json:"drive_folder_url,omitempty"`
}

type CreateWorkOrderRequest struct {
	ID             *string `json:"id,omitempty"`
	ProjectID      string  `json:"project_id"`
	ThreadID       string  `json:"thread_id"`
	Title          string  `json:"title"`
	Deliverables   *string `json:"deliverables,omitempty"`
	PushedToUserID *string `json:"pushed_to_user_id,omitempty"`
}

type UpdateWorkOrderRequest struct {
	Title          *string `json:"title,omitempty"`
	Deliverables   *string `json:"deliverables,omitempty"`
	PushedToUserID *string `json:"pushed_to_user_id,omitempty"`
}

// PushWorkOrderRequest names the assignee; when omitted the work order
// is pushed to the calling user.
type PushWorkOrderRequest struct {
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type ProjectResponse struct {
	ProjectID      string `json:"project_id"`
	ChannelID      string `json:"channel_id,omitempty"`
	Status         string `json:"status" enum:"Active,Finished,Cancelled"`
	Title          string `json:"title"`
	Deliverables   string `json:"deliverables,omitempty"`
	KPI            string `json:"kpi,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	AccountableID  string `json:"accountable_id,omitempty"`
	DriveFolderURL string `json:"drive_folder_url,omitempty"`
}

type WorkOrderResponse struct {
	WorkOrderID      string `json:"work_order_id"`
	ProjectID        string `json:"project_id"`
	ThreadID         string `json:"thread_id"`
	Status           string `json:"status" enum:"Pending,PushedToUser,InProgress,QASubmitted,Completed,Cancelled"`
	Title            string `json:"title"`
	Deliverables     string `json:"deliverables,omitempty"`
	PushedToUserID   string `json:"pushed_to_user_id,omitempty"`
	InProgressUserID string `json:"in_progress_user_id,omitempty"`
	QASubmittedByID  string `json:"qa_submitted_by_id,omitempty"`
	CurrentStartTime string `json:"current_start_time,omitempty" format:"date-time"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
}

type TimeReportResponse struct {
	WorkOrderID      string `json:"work_order_id"`
	Status           string `json:"status"`
	Running          bool   `json:"running"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	LiveTotalSeconds int64  `json:"live_total_seconds"`
	Clock            string `json:"clock"`
}

type EventResponse struct {
	EventID    string         `json:"event_id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ProjectID:      p.ProjectID,
		ChannelID:      p.ChannelID,
		Status:         string(p.Status),
		Title:          p.Title,
		Deliverables:   p.Deliverables,
		KPI:            p.KPI,
		DueDate:        p.DueDate,
		AccountableID:  p.AccountableID,
		DriveFolderURL: p.DriveFolderURL,
	}
}

func workOrderResponse(w domain.WorkOrder) WorkOrderResponse {
	start := ""
	if w.CurrentStartTime != nil {
		start = w.CurrentStartTime.UTC().Format(time.RFC3339)
	}
	return WorkOrderResponse{
		WorkOrderID:      w.WorkOrderID,
		ProjectID:        w.ProjectID,
		ThreadID:         w.ThreadID,
		Status:           string(w.Status),
		Title:            w.Title,
		Deliverables:     w.Deliverables,
		PushedToUserID:   w.PushedToUserID,
		InProgressUserID: w.InProgressUserID,
		QASubmittedByID:  w.QASubmittedByID,
		CurrentStartTime: start,
		TotalTimeSeconds: w.TotalTimeSeconds,
	}
}

func timeReportResponse(r engine.TimeReport) TimeReportResponse {
	return TimeReportResponse(r)
}

func eventResponse(e domain.AuditEvent) EventResponse {
	return EventResponse{
		EventID:    e.EventID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func strValue(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
