package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orderline/internal/config"
	"orderline/internal/engine"
	"orderline/internal/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	URL    string
	Clock  *testClock
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AllowActorHeader = true
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	e := engine.New(memory.New(), cfg, zerolog.Nop())
	e.Now = clock.Now
	handler, err := New(context.Background(), Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:        cfg.Auth.JWTSecret,
			AllowActorHeader: cfg.Auth.AllowActorHeader,
			Tokens:           cfg.Auth.Tokens,
			Log:              zerolog.Nop(),
		},
		Log: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Clock:  clock,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func decodeWorkOrder(t *testing.T, data []byte) WorkOrderResponse {
	t.Helper()
	var w WorkOrderResponse
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal work order: %v: %s", err, string(data))
	}
	return w
}

func decodeErrorEnvelope(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var wrapped struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, string(data))
	}
	return wrapped.Error
}

func createProject(t *testing.T, srv *testServer, title string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title":      title,
		"channel_id": "chan-1",
	}, asActor("mgr"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func createWorkOrder(t *testing.T, srv *testServer, projectID, threadID, title string) WorkOrderResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/workorders", map[string]any{
		"project_id": projectID,
		"thread_id":  threadID,
		"title":      title,
	}, asActor("mgr"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create work order status %d: %s", res.StatusCode, string(data))
	}
	return decodeWorkOrder(t, data)
}

func TestWorkOrderLifecycleAccumulatesTime(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-1", "Write copy")
	if w.Status != "Pending" {
		t.Fatalf("new work order status = %s, want Pending", w.Status)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/push", map[string]any{
		"assignee_id": "dana",
	}, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("push status %d: %s", res.StatusCode, string(data))
	}
	pushed := decodeWorkOrder(t, data)
	if pushed.Status != "PushedToUser" || pushed.PushedToUserID != "dana" {
		t.Fatalf("after push: status=%s pushed_to=%s", pushed.Status, pushed.PushedToUserID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/start", nil, asActor("dana"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	started := decodeWorkOrder(t, data)
	if started.Status != "InProgress" || started.CurrentStartTime == "" {
		t.Fatalf("after start: status=%s start=%q", started.Status, started.CurrentStartTime)
	}

	srv.Clock.Advance(90 * time.Second)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/pause", nil, asActor("dana"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d: %s", res.StatusCode, string(data))
	}
	paused := decodeWorkOrder(t, data)
	if paused.Status != "PushedToUser" {
		t.Fatalf("after pause: status=%s", paused.Status)
	}
	if paused.TotalTimeSeconds != 90 {
		t.Fatalf("after pause: total=%d, want 90", paused.TotalTimeSeconds)
	}
	if paused.CurrentStartTime != "" {
		t.Fatalf("after pause: timer still running (%s)", paused.CurrentStartTime)
	}

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/start", nil, asActor("dana"))
	srv.Clock.Advance(30 * time.Second)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/submit-qa", nil, asActor("dana"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit-qa status %d: %s", res.StatusCode, string(data))
	}
	submitted := decodeWorkOrder(t, data)
	if submitted.Status != "QASubmitted" || submitted.TotalTimeSeconds != 120 {
		t.Fatalf("after submit: status=%s total=%d", submitted.Status, submitted.TotalTimeSeconds)
	}
	if submitted.QASubmittedByID != "dana" {
		t.Fatalf("after submit: qa_submitted_by=%s", submitted.QASubmittedByID)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/approve", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	done := decodeWorkOrder(t, data)
	if done.Status != "Completed" || done.TotalTimeSeconds != 120 {
		t.Fatalf("after approve: status=%s total=%d", done.Status, done.TotalTimeSeconds)
	}
}

func TestRejectResumesTimer(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-1", "Design page")
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/push", map[string]any{"assignee_id": "dana"}, asActor("mgr"))
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/start", nil, asActor("dana"))
	srv.Clock.Advance(60 * time.Second)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/submit-qa", nil, asActor("dana"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/reject", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject status %d: %s", res.StatusCode, string(data))
	}
	rejected := decodeWorkOrder(t, data)
	if rejected.Status != "InProgress" || rejected.CurrentStartTime == "" {
		t.Fatalf("after reject: status=%s start=%q", rejected.Status, rejected.CurrentStartTime)
	}
	if rejected.TotalTimeSeconds != 60 {
		t.Fatalf("after reject: total=%d, want 60", rejected.TotalTimeSeconds)
	}

	srv.Clock.Advance(15 * time.Second)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/time", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("time status %d: %s", res.StatusCode, string(data))
	}
	var report TimeReportResponse
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if !report.Running || report.TotalTimeSeconds != 60 || report.LiveTotalSeconds != 75 {
		t.Fatalf("report = %+v, want running with total 60 live 75", report)
	}
	if report.Clock != "00:01:15" {
		t.Fatalf("clock = %s, want 00:01:15", report.Clock)
	}
}

func TestStartByWrongUserForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-1", "QA pass")
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/push", map[string]any{"assignee_id": "dana"}, asActor("mgr"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/start", nil, asActor("eve"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	envelope := decodeErrorEnvelope(t, data)
	if envelope.Code != "not_assignee" {
		t.Fatalf("error code = %s, want not_assignee", envelope.Code)
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-1", "Review")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/approve", nil, asActor("mgr"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}
	envelope := decodeErrorEnvelope(t, data)
	if envelope.Code != "invalid_transition" {
		t.Fatalf("error code = %s, want invalid_transition", envelope.Code)
	}
	if envelope.Details["status"] != "Pending" || envelope.Details["event"] != "approve" {
		t.Fatalf("details = %v", envelope.Details)
	}
}

func TestThreadLookup(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-42", "Edit video")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/threads/thread-42/workorder", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("thread lookup status %d: %s", res.StatusCode, string(data))
	}
	found := decodeWorkOrder(t, data)
	if found.WorkOrderID != w.WorkOrderID {
		t.Fatalf("thread resolved to %s, want %s", found.WorkOrderID, w.WorkOrderID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/threads/no-such-thread/workorder", nil, asActor("mgr"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing thread status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders", map[string]any{
		"project_id": p.ProjectID,
		"thread_id":  "thread-42",
		"title":      "Duplicate",
	}, asActor("mgr"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate thread bind status %d: %s", res.StatusCode, string(data))
	}
}

func TestCancelProjectCascades(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	open := createWorkOrder(t, srv, p.ProjectID, "thread-1", "Open order")
	running := createWorkOrder(t, srv, p.ProjectID, "thread-2", "Running order")
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+running.WorkOrderID+"/push", map[string]any{"assignee_id": "dana"}, asActor("mgr"))
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+running.WorkOrderID+"/start", nil, asActor("dana"))
	srv.Clock.Advance(45 * time.Second)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ProjectID+"/cancel", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel project status %d: %s", res.StatusCode, string(data))
	}

	for _, id := range []string{open.WorkOrderID, running.WorkOrderID} {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workorders/"+id, nil, asActor("mgr"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get %s status %d: %s", id, res.StatusCode, string(data))
		}
		w := decodeWorkOrder(t, data)
		if w.Status != "Cancelled" {
			t.Fatalf("work order %s status = %s, want Cancelled", id, w.Status)
		}
		if id == running.WorkOrderID && w.TotalTimeSeconds != 45 {
			t.Fatalf("cancelled running order total = %d, want 45", w.TotalTimeSeconds)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials status %d: %s", res.StatusCode, string(data))
	}
	envelope := decodeErrorEnvelope(t, data)
	if envelope.Code != "unauthorized" {
		t.Fatalf("error code = %s, want unauthorized", envelope.Code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "dana",
	}, asActor("dana"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("empty token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer request status %d: %s", res.StatusCode, string(data))
	}
}

func TestEventsFeedPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createProject(t, srv, "Launch")
	w := createWorkOrder(t, srv, p.ProjectID, "thread-1", "Record audio")
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/push", map[string]any{"assignee_id": "dana"}, asActor("mgr"))
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/workorders/"+w.WorkOrderID+"/start", nil, asActor("dana"))

	// Feed so far: project.created, workorder.created, workorder.push,
	// workorder.start.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("page = %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	if page.Items[0].Type != "project.created" {
		t.Fatalf("first event = %s, want project.created", page.Items[0].Type)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=10&cursor="+page.NextCursor, nil, asActor("mgr"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	var rest paginatedEvents
	if err := json.Unmarshal(data, &rest); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(rest.Items) != 2 || rest.NextCursor != "" {
		t.Fatalf("page 2 = %d items, cursor %q", len(rest.Items), rest.NextCursor)
	}
	if rest.Items[0].Type != "workorder.push" || rest.Items[1].Type != "workorder.start" {
		t.Fatalf("page 2 types = %s, %s", rest.Items[0].Type, rest.Items[1].Type)
	}
}
