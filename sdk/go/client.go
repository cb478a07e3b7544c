package momtracksdk

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

// Client is a minimal MomTrack HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Department represents the API department model.
type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// Meeting represents the API meeting model.
type Meeting struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	DepartmentID string   `json:"department_id"`
	Date         string   `json:"date"`
	Location     string   `json:"location,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// AgendaItem is one agenda entry inside minutes.
type AgendaItem struct {
	Title      string `json:"title"`
	Discussion string `json:"discussion,omitempty"`
	Decisions  string `json:"decisions,omitempty"`
}

// MOM represents the API minutes-of-meeting model.
type MOM struct {
	ID              string       `json:"id"`
	MeetingID       string       `json:"meeting_id"`
	PreparedBy      string       `json:"prepared_by"`
	AgendaItems     []AgendaItem `json:"agenda_items"`
	Summary         string       `json:"summary,omitempty"`
	Status          string       `json:"status"`
	ValidatedBy     *string      `json:"validated_by,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
	CreatedAt       string       `json:"created_at"`
	UpdatedAt       string       `json:"updated_at"`
}

// Task represents the API task model.
type Task struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	DepartmentID string  `json:"department_id"`
	AssignedTo   string  `json:"assigned_to"`
	MOMID        *string `json:"mom_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// StatusBreakout is a total plus per-status counts.
type StatusBreakout struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Dashboard represents the aggregated counts view.
type Dashboard struct {
	Departments int            `json:"departments"`
	Meetings    int            `json:"meetings"`
	MOMs        StatusBreakout `json:"moms"`
	Tasks       StatusBreakout `json:"tasks"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDepartment creates a department.
func (c *Client) CreateDepartment(ctx context.Context, name, description string) (Department, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	var resp Department
	err := c.do(ctx, http.MethodPost, "v0/departments", body, &resp)
	return resp, err
}

// ListDepartments returns all departments.
func (c *Client) ListDepartments(ctx context.Context) ([]Department, error) {
	var resp []Department
	err := c.do(ctx, http.MethodGet, "v0/departments", nil, &resp)
	return resp, err
}

// GetDepartment fetches one department by id.
func (c *Client) GetDepartment(ctx context.Context, departmentID string) (Department, error) {
	var resp Department
	err := c.do(ctx, http.MethodGet, "v0/departments/"+url.PathEscape(departmentID), nil, &resp)
	return resp, err
}

// DeleteDepartment removes a department. The server refuses with a conflict
// while meetings or tasks still reference it.
func (c *Client) DeleteDepartment(ctx context.Context, departmentID string) error {
	return c.do(ctx, http.MethodDelete, "v0/departments/"+url.PathEscape(departmentID), nil, nil)
}

// CreateMeeting creates a meeting in a department.
func (c *Client) CreateMeeting(ctx context.Context, title, departmentID, date string, attendees []string) (Meeting, error) {
	body := map[string]any{
		"title":         title,
		"department_id": departmentID,
		"date":          date,
	}
	if len(attendees) > 0 {
		body["attendees"] = attendees
	}
	var resp Meeting
	err := c.do(ctx, http.MethodPost, "v0/meetings", body, &resp)
	return resp, err
}

// ListMeetings returns meetings, optionally filtered by department.
func (c *Client) ListMeetings(ctx context.Context, departmentID string) ([]Meeting, error) {
	endpoint := "v0/meetings"
	if departmentID != "" {
		endpoint += "?department_id=" + url.QueryEscape(departmentID)
	}
	var resp []Meeting
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetMeeting fetches one meeting by id.
func (c *Client) GetMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	var resp Meeting
	err := c.do(ctx, http.MethodGet, "v0/meetings/"+url.PathEscape(meetingID), nil, &resp)
	return resp, err
}

// CreateMOM creates draft minutes for a meeting.
func (c *Client) CreateMOM(ctx context.Context, meetingID, preparedBy string) (MOM, error) {
	body := map[string]any{
		"meeting_id":  meetingID,
		"prepared_by": preparedBy,
	}
	var resp MOM
	err := c.do(ctx, http.MethodPost, "v0/moms", body, &resp)
	return resp, err
}

// GetMOM fetches one minutes document by id.
func (c *Client) GetMOM(ctx context.Context, momID string) (MOM, error) {
	var resp MOM
	err := c.do(ctx, http.MethodGet, "v0/moms/"+url.PathEscape(momID), nil, &resp)
	return resp, err
}

// ListMOMs returns minutes documents, optionally filtered by status.
func (c *Client) ListMOMs(ctx context.Context, status string) ([]MOM, error) {
	endpoint := "v0/moms"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []MOM
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MeetingMOM returns the most recent minutes document for a meeting.
func (c *Client) MeetingMOM(ctx context.Context, meetingID string) (MOM, error) {
	var resp MOM
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/meetings/%s/mom", url.PathEscape(meetingID)), nil, &resp)
	return resp, err
}

// UpdateSummary replaces the summary of draft minutes.
func (c *Client) UpdateSummary(ctx context.Context, momID, summary string) (MOM, error) {
	body := map[string]any{"summary": summary}
	var resp MOM
	err := c.do(ctx, http.MethodPatch, c.momPath(momID, "summary"), body, &resp)
	return resp, err
}

// AddAgendaItem appends one agenda item to draft minutes.
func (c *Client) AddAgendaItem(ctx context.Context, momID, title, discussion, decisions string) (MOM, error) {
	body := map[string]any{"title": title}
	if discussion != "" {
		body["discussion"] = discussion
	}
	if decisions != "" {
		body["decisions"] = decisions
	}
	var resp MOM
	err := c.do(ctx, http.MethodPost, c.momPath(momID, "agenda-items"), body, &resp)
	return resp, err
}

// SubmitMOM moves draft minutes to pending_review.
func (c *Client) SubmitMOM(ctx context.Context, momID string) (MOM, error) {
	var resp MOM
	err := c.do(ctx, http.MethodPost, c.momPath(momID, "submit"), nil, &resp)
	return resp, err
}

// ValidateMOM approves pending minutes.
func (c *Client) ValidateMOM(ctx context.Context, momID, validatedBy string) (MOM, error) {
	body := map[string]any{"validated_by": validatedBy}
	var resp MOM
	err := c.do(ctx, http.MethodPost, c.momPath(momID, "validate"), body, &resp)
	return resp, err
}

// RejectMOM rejects pending minutes with a reason.
func (c *Client) RejectMOM(ctx context.Context, momID, rejectedBy, reason string) (MOM, error) {
	body := map[string]any{"rejected_by": rejectedBy, "reason": reason}
	var resp MOM
	err := c.do(ctx, http.MethodPost, c.momPath(momID, "reject"), body, &resp)
	return resp, err
}

// ReviseMOM returns rejected minutes to draft.
func (c *Client) ReviseMOM(ctx context.Context, momID string) (MOM, error) {
	var resp MOM
	err := c.do(ctx, http.MethodPost, c.momPath(momID, "revise"), nil, &resp)
	return resp, err
}

// CreateTask creates a task, optionally linked to minutes via momID.
func (c *Client) CreateTask(ctx context.Context, title, departmentID, assignedTo, momID string) (Task, error) {
	body := map[string]any{
		"title":         title,
		"department_id": departmentID,
		"assigned_to":   assignedTo,
	}
	if momID != "" {
		body["mom_id"] = momID
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp, err
}

// TaskFilters narrows a task listing; zero-value fields are ignored.
type TaskFilters struct {
	DepartmentID string
	AssignedTo   string
	Status       string
	MOMID        string
}

// ListTasks returns tasks matching the filters.
func (c *Client) ListTasks(ctx context.Context, f TaskFilters) ([]Task, error) {
	q := url.Values{}
	if f.DepartmentID != "" {
		q.Set("department_id", f.DepartmentID)
	}
	if f.AssignedTo != "" {
		q.Set("assigned_to", f.AssignedTo)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.MOMID != "" {
		q.Set("mom_id", f.MOMID)
	}
	endpoint := "v0/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// TaskUpdate holds the editable task fields; nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Priority    *string `json:"priority,omitempty"`
}

// UpdateTask applies a partial edit to a non-terminal task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(taskID), update, &resp)
	return resp, err
}

// DeleteTask removes a task in any state.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "v0/tasks/"+url.PathEscape(taskID), nil, nil)
}

// StartTask moves a task to in_progress.
func (c *Client) StartTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "start"), nil, &resp)
	return resp, err
}

// CompleteTask moves a task to completed.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "complete"), nil, &resp)
	return resp, err
}

// CancelTask moves a task to cancelled.
func (c *Client) CancelTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "cancel"), nil, &resp)
	return resp, err
}

// Dashboard returns aggregated counts.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "v0/dashboard", nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
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
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) momPath(id, action string) string {
	return fmt.Sprintf("v0/moms/%s/%s", url.PathEscape(id), action)
}

func (c *Client) taskPath(id, action string) string {
	return fmt.Sprintf("v0/tasks/%s/%s", url.PathEscape(id), action)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
