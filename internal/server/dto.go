package server

import (
	"encoding/json"

	"momtrack/internal/domain"
)

// Request payloads

type CreateDepartmentRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type CreateMeetingRequest struct {
	Title        string   `json:"title"`
	DepartmentID string   `json:"department_id"`
	Date         string   `json:"date"`
	Location     *string  `json:"location,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
}

type CreateMOMRequest struct {
	MeetingID  string  `json:"meeting_id"`
	PreparedBy string  `json:"prepared_by"`
	Summary    *string `json:"summary,omitempty"`
}

type AddAgendaItemRequest struct {
	Title      string  `json:"title"`
	Discussion *string `json:"discussion,omitempty"`
	Decisions  *string `json:"decisions,omitempty"`
}

type UpdateSummaryRequest struct {
	Summary string `json:"summary"`
}

type ValidateMOMRequest struct {
	ValidatedBy string `json:"validated_by"`
}

type RejectMOMRequest struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

type CreateTaskRequest struct {
	Title        string  `json:"title"`
	DepartmentID string  `json:"department_id"`
	AssignedTo   string  `json:"assigned_to"`
	Description  *string `json:"description,omitempty"`
	MOMID        *string `json:"mom_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
	Priority     *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high,critical"`
}

// Response payloads

type DepartmentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MeetingResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	DepartmentID string   `json:"department_id"`
	Date         string   `json:"date"`
	Location     string   `json:"location,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type AgendaItemResponse struct {
	Title      string `json:"title"`
	Discussion string `json:"discussion,omitempty"`
	Decisions  string `json:"decisions,omitempty"`
}

type MOMResponse struct {
	ID              string               `json:"id"`
	MeetingID       string               `json:"meeting_id"`
	PreparedBy      string               `json:"prepared_by"`
	AgendaItems     []AgendaItemResponse `json:"agenda_items"`
	Summary         string               `json:"summary,omitempty"`
	Status          string               `json:"status" enum:"draft,pending_review,validated,rejected"`
	ValidatedBy     *string              `json:"validated_by,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	CreatedAt       string               `json:"created_at" format:"date-time"`
	UpdatedAt       string               `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	DepartmentID string  `json:"department_id"`
	AssignedTo   string  `json:"assigned_to"`
	MOMID        *string `json:"mom_id,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
	Status       string  `json:"status" enum:"open,in_progress,completed,cancelled"`
	Priority     string  `json:"priority" enum:"low,medium,high,critical"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type StatusBreakoutResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type DashboardResponse struct {
	Departments int                    `json:"departments"`
	Meetings    int                    `json:"meetings"`
	MOMs        StatusBreakoutResponse `json:"moms"`
	Tasks       StatusBreakoutResponse `json:"tasks"`
}

// Mappers

func departmentResponse(d domain.Department) DepartmentResponse {
	return DepartmentResponse(d)
}

func mapDepartments(in []domain.Department) []DepartmentResponse {
	out := make([]DepartmentResponse, 0, len(in))
	for _, d := range in {
		out = append(out, departmentResponse(d))
	}
	return out
}

func meetingResponse(m domain.Meeting) MeetingResponse {
	return MeetingResponse(m)
}

func mapMeetings(in []domain.Meeting) []MeetingResponse {
	out := make([]MeetingResponse, 0, len(in))
	for _, m := range in {
		out = append(out, meetingResponse(m))
	}
	return out
}

func momResponse(m domain.MinutesOfMeeting) MOMResponse {
	items := make([]AgendaItemResponse, 0, len(m.AgendaItems))
	for _, it := range m.AgendaItems {
		items = append(items, AgendaItemResponse(it))
	}
	return MOMResponse{
		ID:              m.ID,
		MeetingID:       m.MeetingID,
		PreparedBy:      m.PreparedBy,
		AgendaItems:     items,
		Summary:         m.Summary,
		Status:          m.Status,
		ValidatedBy:     m.ValidatedBy,
		RejectionReason: m.RejectionReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func mapMOMs(in []domain.MinutesOfMeeting) []MOMResponse {
	out := make([]MOMResponse, 0, len(in))
	for _, m := range in {
		out = append(out, momResponse(m))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, eventResponse(e))
	}
	return out
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

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

func dashboardResponse(d domain.Dashboard) DashboardResponse {
	return DashboardResponse{
		Departments: d.Departments,
		Meetings:    d.Meetings,
		MOMs:        StatusBreakoutResponse(d.MOMs),
		Tasks:       StatusBreakoutResponse(d.Tasks),
	}
}
