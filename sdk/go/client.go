package orderlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Orderline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ProjectID      string `json:"project_id"`
	ChannelID      string `json:"channel_id,omitempty"`
	Status         string `json:"status"`
	Title          string `json:"title"`
	Deliverables   string `json:"deliverables,omitempty"`
	KPI            string `json:"kpi,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	AccountableID  string `json:"accountable_id,omitempty"`
	DriveFolderURL string `json:"drive_folder_url,omitempty"`
}

// WorkOrder represents the API work order model.
type WorkOrder struct {
	WorkOrderID      string `json:"work_order_id"`
	ProjectID        string `json:"project_id"`
	ThreadID         string `json:"thread_id"`
	Status           string `json:"status"`
	Title            string `json:"title"`
	Deliverables     string `json:"deliverables,omitempty"`
	PushedToUserID   string `json:"pushed_to_user_id,omitempty"`
	InProgressUserID string `json:"in_progress_user_id,omitempty"`
	QASubmittedByID  string `json:"qa_submitted_by_id,omitempty"`
	CurrentStartTime string `json:"current_start_time,omitempty"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
}

// TimeReport is the work order clock view.
type TimeReport struct {
	WorkOrderID      string `json:"work_order_id"`
	Status           string `json:"status"`
	Running          bool   `json:"running"`
	TotalTimeSeconds int64  `json:"total_time_seconds"`
	LiveTotalSeconds int64  `json:"live_total_seconds"`
	Clock            string `json:"clock"`
}

// Event represents an audit log entry.
type Event struct {
	EventID    string         `json:"event_id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, title, channelID string) (Project, error) {
	body := map[string]any{
		"title":      title,
		"channel_id": channelID,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects lists projects, optionally filtered by status.
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "v0/projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// FinishProject marks an active project finished.
func (c *Client) FinishProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/finish", nil, &resp)
	return resp, err
}

// CancelProject cancels a project and its open work orders.
func (c *Client) CancelProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// CreateWorkOrder creates a work order bound to a chat thread.
func (c *Client) CreateWorkOrder(ctx context.Context, projectID, threadID, title string) (WorkOrder, error) {
	body := map[string]any{
		"project_id": projectID,
		"thread_id":  threadID,
		"title":      title,
	}
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, "v0/workorders", body, &resp)
	return resp, err
}

// GetWorkOrder fetches a work order by id.
func (c *Client) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, "v0/workorders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// WorkOrderByThread resolves a chat thread to its work order.
func (c *Client) WorkOrderByThread(ctx context.Context, threadID string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, "v0/threads/"+url.PathEscape(threadID)+"/workorder", nil, &resp)
	return resp, err
}

// ListWorkOrders lists work orders with optional filters.
func (c *Client) ListWorkOrders(ctx context.Context, projectID, status string) ([]WorkOrder, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "v0/workorders"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []WorkOrder
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Push assigns the work order to a user and moves it to PushedToUser.
// An empty assignee pushes to the authenticated caller.
func (c *Client) Push(ctx context.Context, id, assigneeID string) (WorkOrder, error) {
	var body any
	if assigneeID != "" {
		body = map[string]any{"assignee_id": assigneeID}
	}
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, "v0/workorders/"+url.PathEscape(id)+"/push", body, &resp)
	return resp, err
}

// Start begins work, opening the timer. Only the assignee may start.
func (c *Client) Start(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "start")
}

// Pause stops work and folds elapsed time into the total.
func (c *Client) Pause(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "pause")
}

// SubmitQA submits work for review, closing the timer.
func (c *Client) SubmitQA(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "submit-qa")
}

// Approve completes a QA-submitted work order.
func (c *Client) Approve(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "approve")
}

// Reject sends a QA-submitted work order back to InProgress.
func (c *Client) Reject(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "reject")
}

// Cancel closes an open work order.
func (c *Client) Cancel(ctx context.Context, id string) (WorkOrder, error) {
	return c.lifecycle(ctx, id, "cancel")
}

func (c *Client) lifecycle(ctx context.Context, id, verb string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, "v0/workorders/"+url.PathEscape(id)+"/"+verb, nil, &resp)
	return resp, err
}

// Time fetches the live time report for a work order.
func (c *Client) Time(ctx context.Context, id string) (TimeReport, error) {
	var resp TimeReport
	err := c.do(ctx, http.MethodGet, "v0/workorders/"+url.PathEscape(id)+"/time", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
