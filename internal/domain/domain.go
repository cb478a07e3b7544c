package domain

type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Meeting struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	DepartmentID string   `json:"department_id"`
	Date         string   `json:"date"`
	Location     string   `json:"location,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

// AgendaItem is a value object owned by exactly one MinutesOfMeeting.
// Items are ordered and append-only while the document is in draft.
type AgendaItem struct {
	Title      string `json:"title"`
	Discussion string `json:"discussion,omitempty"`
	Decisions  string `json:"decisions,omitempty"`
}

type MinutesOfMeeting struct {
	ID              string       `json:"id"`
	MeetingID       string       `json:"meeting_id"`
	PreparedBy      string       `json:"prepared_by"`
	AgendaItems     []AgendaItem `json:"agenda_items"`
	Summary         string       `json:"summary,omitempty"`
	Status          string       `json:"status" enum:"draft,pending_review,validated,rejected"`
	ValidatedBy     *string      `json:"validated_by,omitempty"`
	RejectionReason *string      `json:"rejection_reason,omitempty"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

type Task struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Dashboard is a point-in-time count of entities grouped by status.
type Dashboard struct {
	Departments int            `json:"departments"`
	Meetings    int            `json:"meetings"`
	MOMs        StatusBreakout `json:"moms"`
	Tasks       StatusBreakout `json:"tasks"`
}

// StatusBreakout holds a total plus per-status counts. Statuses with a zero
// count are omitted from ByStatus.
type StatusBreakout struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}
