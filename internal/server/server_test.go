package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"momtrack/internal/config"
	"momtrack/internal/db"
	"momtrack/internal/engine"
	"momtrack/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
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

func seedMeeting(t *testing.T, srv *testServer) (departmentID, meetingID string) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/departments", map[string]any{
		"name": "Engineering",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create department: %d %s", res.StatusCode, string(data))
	}
	var dept DepartmentResponse
	if err := json.Unmarshal(data, &dept); err != nil {
		t.Fatalf("unmarshal department: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/meetings", map[string]any{
		"title":         "Sprint planning",
		"department_id": dept.ID,
		"date":          "2024-03-01",
		"attendees":     []string{"alice", "bob"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create meeting: %d %s", res.StatusCode, string(data))
	}
	var meeting MeetingResponse
	if err := json.Unmarshal(data, &meeting); err != nil {
		t.Fatalf("unmarshal meeting: %v", err)
	}
	return dept.ID, meeting.ID
}

func TestMOMReviewWorkflow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, meetingID := seedMeeting(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms", map[string]any{
		"meeting_id":  meetingID,
		"prepared_by": "alice",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mom: %d %s", res.StatusCode, string(data))
	}
	var mom MOMResponse
	if err := json.Unmarshal(data, &mom); err != nil {
		t.Fatalf("unmarshal mom: %v", err)
	}
	if mom.Status != "draft" {
		t.Fatalf("expected draft, got %s", mom.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/agenda-items", map[string]any{
		"title":      "Budget review",
		"discussion": "Q2 spend",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add agenda item: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/submit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var submitted MOMResponse
	_ = json.Unmarshal(data, &submitted)
	if submitted.Status != "pending_review" {
		t.Fatalf("expected pending_review, got %s", submitted.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/validate", map[string]any{
		"validated_by": "carol",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate: %d %s", res.StatusCode, string(data))
	}
	var validated MOMResponse
	if err := json.Unmarshal(data, &validated); err != nil {
		t.Fatalf("unmarshal validated: %v", err)
	}
	if validated.Status != "validated" {
		t.Fatalf("expected validated, got %s", validated.Status)
	}
	if validated.ValidatedBy == nil || *validated.ValidatedBy != "carol" {
		t.Fatalf("expected validated_by carol, got %v", validated.ValidatedBy)
	}

	// A validated document is immutable.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/agenda-items", map[string]any{
		"title": "Late addition",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
}

func TestRejectRequiresReason(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, meetingID := seedMeeting(t, srv)

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms", map[string]any{
		"meeting_id":  meetingID,
		"prepared_by": "alice",
	}, nil)
	var mom MOMResponse
	_ = json.Unmarshal(data, &mom)
	if _, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/submit", nil, nil); len(body) == 0 {
		t.Fatalf("submit returned empty body")
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/reject", map[string]any{
		"rejected_by": "carol",
		"reason":      "",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}

	// Document is untouched by the failed rejection.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/moms/"+mom.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get mom: %d %s", res.StatusCode, string(data))
	}
	var fetched MOMResponse
	_ = json.Unmarshal(data, &fetched)
	if fetched.Status != "pending_review" {
		t.Fatalf("expected pending_review, got %s", fetched.Status)
	}
	if fetched.RejectionReason != nil {
		t.Fatalf("expected no rejection reason, got %q", *fetched.RejectionReason)
	}
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	_, meetingID := seedMeeting(t, srv)

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms", map[string]any{
		"meeting_id":  meetingID,
		"prepared_by": "alice",
	}, nil)
	var mom MOMResponse
	_ = json.Unmarshal(data, &mom)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms/"+mom.ID+"/validate", map[string]any{
		"validated_by": "carol",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", envelope.Error.Code)
	}
}

func TestDepartmentDeleteBlocked(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	deptID, _ := seedMeeting(t, srv)

	res, data := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/departments/"+deptID, nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	deptID, _ := seedMeeting(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":         "Prepare budget report",
		"department_id": deptID,
		"assigned_to":   "bob",
	}, map[string]string{"X-Actor-Id": "alice"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)
	if task.Priority != "medium" {
		t.Fatalf("expected default priority medium, got %s", task.Priority)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/start", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/"+task.ID+"/complete", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, string(data))
	}
	var done TaskResponse
	_ = json.Unmarshal(data, &done)
	if done.Status != "completed" {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	// Terminal tasks cannot be edited.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+task.ID, map[string]any{
		"title": "Rename",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestDashboardCounts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	deptID, meetingID := seedMeeting(t, srv)

	doJSON(t, client, http.MethodPost, srv.URL+"/v0/moms", map[string]any{
		"meeting_id":  meetingID,
		"prepared_by": "alice",
	}, nil)
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":         "Follow up",
		"department_id": deptID,
		"assigned_to":   "bob",
	}, nil)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", res.StatusCode, string(data))
	}
	var dash DashboardResponse
	if err := json.Unmarshal(data, &dash); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if dash.Departments != 1 || dash.Meetings != 1 {
		t.Fatalf("unexpected counts: %+v", dash)
	}
	if dash.MOMs.Total != 1 || dash.MOMs.ByStatus["draft"] != 1 {
		t.Fatalf("unexpected mom counts: %+v", dash.MOMs)
	}
	if dash.Tasks.Total != 1 || dash.Tasks.ByStatus["open"] != 1 {
		t.Fatalf("unexpected task counts: %+v", dash.Tasks)
	}
}
