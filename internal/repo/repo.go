package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"momtrack/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// -- departments --

func (r Repo) InsertDepartment(ctx context.Context, tx *sql.Tx, d domain.Department) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO departments(id,name,description,created_at) VALUES (?,?,?,?)`,
		d.ID, d.Name, nullable(d.Description), d.CreatedAt)
	return err
}

func (r Repo) GetDepartment(ctx context.Context, id string) (domain.Department, error) {
	var d domain.Department
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM departments WHERE id=?`, id).
		Scan(&d.ID, &d.Name, &desc, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if desc.Valid {
		d.Description = desc.String
	}
	return d, err
}

func (r Repo) DepartmentNameExists(ctx context.Context, name string) (bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT 1 FROM departments WHERE name=? LIMIT 1`, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (r Repo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at FROM departments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func (r Repo) DeleteDepartment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM departments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDepartmentRefs reports how many meetings and tasks still reference the
// department.
func (r Repo) CountDepartmentRefs(ctx context.Context, tx *sql.Tx, id string) (meetings, tasks int, err error) {
	if err = tx.QueryRowContext(ctx, `SELECT count(*) FROM meetings WHERE department_id=?`, id).Scan(&meetings); err != nil {
		return 0, 0, err
	}
	if err = tx.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE department_id=?`, id).Scan(&tasks); err != nil {
		return 0, 0, err
	}
	return meetings, tasks, nil
}

// -- meetings --

func (r Repo) InsertMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	attendees, err := marshalStringSlice(m.Attendees)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO meetings(id,title,department_id,date,location,attendees_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.Title, m.DepartmentID, m.Date, nullable(m.Location), nullableStringPtr(attendees), m.CreatedAt)
	return err
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	var m domain.Meeting
	var location, attendees sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,department_id,date,location,attendees_json,created_at FROM meetings WHERE id=?`, id).
		Scan(&m.ID, &m.Title, &m.DepartmentID, &m.Date, &location, &attendees, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if location.Valid {
		m.Location = location.String
	}
	if attendees.Valid {
		if err := json.Unmarshal([]byte(attendees.String), &m.Attendees); err != nil {
			return m, fmt.Errorf("meeting %s attendees: %w", id, err)
		}
	}
	return m, nil
}

func (r Repo) ListMeetings(ctx context.Context, departmentID string) ([]domain.Meeting, error) {
	query := `SELECT id,title,department_id,date,location,attendees_json,created_at FROM meetings`
	var args []any
	if departmentID != "" {
		query += ` WHERE department_id=?`
		args = append(args, departmentID)
	}
	query += ` ORDER BY date DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Meeting
	for rows.Next() {
		var m domain.Meeting
		var location, attendees sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &m.DepartmentID, &m.Date, &location, &attendees, &m.CreatedAt); err != nil {
			return nil, err
		}
		if location.Valid {
			m.Location = location.String
		}
		if attendees.Valid {
			if err := json.Unmarshal([]byte(attendees.String), &m.Attendees); err != nil {
				return nil, fmt.Errorf("meeting %s attendees: %w", m.ID, err)
			}
		}
		res = append(res, m)
	}
	return res, nil
}

// -- minutes of meeting --

func (r Repo) InsertMOM(ctx context.Context, tx *sql.Tx, m domain.MinutesOfMeeting) error {
	agenda, err := marshalAgenda(m.AgendaItems)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO moms(id,meeting_id,prepared_by,agenda_json,summary,status,validated_by,rejection_reason,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.MeetingID, m.PreparedBy, agenda, nullable(m.Summary), m.Status,
		nullableStringPtr(m.ValidatedBy), nullableStringPtr(m.RejectionReason), m.CreatedAt, m.UpdatedAt)
	return err
}

// UpdateMOMFrom writes the full MOM row guarded on the expected prior status.
// It reports false when a concurrent transition already moved the record on,
// leaving the row untouched.
func (r Repo) UpdateMOMFrom(ctx context.Context, tx *sql.Tx, m domain.MinutesOfMeeting, expectedStatus string) (bool, error) {
	agenda, err := marshalAgenda(m.AgendaItems)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE moms SET prepared_by=?, agenda_json=?, summary=?, status=?, validated_by=?, rejection_reason=?, updated_at=? WHERE id=? AND status=?`,
		m.PreparedBy, agenda, nullable(m.Summary), m.Status,
		nullableStringPtr(m.ValidatedBy), nullableStringPtr(m.RejectionReason), m.UpdatedAt, m.ID, expectedStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanMOM(scan func(dest ...any) error) (domain.MinutesOfMeeting, error) {
	var m domain.MinutesOfMeeting
	var agenda string
	var summary, validatedBy, rejectionReason sql.NullString
	err := scan(&m.ID, &m.MeetingID, &m.PreparedBy, &agenda, &summary, &m.Status, &validatedBy, &rejectionReason, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.AgendaItems = []domain.AgendaItem{}
	if agenda != "" {
		if err := json.Unmarshal([]byte(agenda), &m.AgendaItems); err != nil {
			return m, fmt.Errorf("mom %s agenda: %w", m.ID, err)
		}
	}
	if summary.Valid {
		m.Summary = summary.String
	}
	if validatedBy.Valid {
		m.ValidatedBy = &validatedBy.String
	}
	if rejectionReason.Valid {
		m.RejectionReason = &rejectionReason.String
	}
	return m, nil
}

const momColumns = `id,meeting_id,prepared_by,agenda_json,summary,status,validated_by,rejection_reason,created_at,updated_at`

func (r Repo) GetMOM(ctx context.Context, id string) (domain.MinutesOfMeeting, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+momColumns+` FROM moms WHERE id=?`, id)
	return scanMOM(row.Scan)
}

func (r Repo) GetMOMTx(ctx context.Context, tx *sql.Tx, id string) (domain.MinutesOfMeeting, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+momColumns+` FROM moms WHERE id=?`, id)
	return scanMOM(row.Scan)
}

// MOMForMeeting returns the most recent minutes document for a meeting.
func (r Repo) MOMForMeeting(ctx context.Context, meetingID string) (domain.MinutesOfMeeting, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+momColumns+` FROM moms WHERE meeting_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, meetingID)
	return scanMOM(row.Scan)
}

// ActiveMOMForMeeting returns a non-terminal minutes document for a meeting,
// or ErrNotFound when none exists.
func (r Repo) ActiveMOMForMeeting(ctx context.Context, tx *sql.Tx, meetingID string) (domain.MinutesOfMeeting, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+momColumns+` FROM moms WHERE meeting_id=? AND status != 'validated' ORDER BY created_at DESC, id DESC LIMIT 1`, meetingID)
	return scanMOM(row.Scan)
}

func (r Repo) ListMOMs(ctx context.Context, status string) ([]domain.MinutesOfMeeting, error) {
	query := `SELECT ` + momColumns + ` FROM moms`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MinutesOfMeeting
	for rows.Next() {
		m, err := scanMOM(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// -- tasks --

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,department_id,assigned_to,mom_id,due_date,status,priority,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.DepartmentID, t.AssignedTo,
		nullableStringPtr(t.MOMID), nullableStringPtr(t.DueDate), t.Status, t.Priority, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTaskFrom writes the full task row guarded on the expected prior
// status, reporting false when the guard did not match.
func (r Repo) UpdateTaskFrom(ctx context.Context, tx *sql.Tx, t domain.Task, expectedStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, assigned_to=?, mom_id=?, due_date=?, status=?, priority=?, updated_at=? WHERE id=? AND status=?`,
		t.Title, nullable(t.Description), t.AssignedTo, nullableStringPtr(t.MOMID), nullableStringPtr(t.DueDate),
		t.Status, t.Priority, t.UpdatedAt, t.ID, expectedStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, momID, dueDate sql.NullString
	err := scan(&t.ID, &t.Title, &description, &t.DepartmentID, &t.AssignedTo, &momID, &dueDate, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if momID.Valid {
		t.MOMID = &momID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, nil
}

const taskColumns = `id,title,description,department_id,assigned_to,mom_id,due_date,status,priority,created_at,updated_at`

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	DepartmentID string
	AssignedTo   string
	Status       string
	MOMID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.DepartmentID != "" {
		clauses = append(clauses, "department_id=?")
		args = append(args, f.DepartmentID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.MOMID != "" {
		clauses = append(clauses, "mom_id=?")
		args = append(args, f.MOMID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// -- dashboard counts --

func (r Repo) CountDepartmentsTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM departments`).Scan(&n)
	return n, err
}

func (r Repo) CountMeetingsTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM meetings`).Scan(&n)
	return n, err
}

func (r Repo) CountMOMsByStatusTx(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	return countByStatusTx(ctx, tx, `SELECT status, count(*) FROM moms GROUP BY status`)
}

func (r Repo) CountTasksByStatusTx(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	return countByStatusTx(ctx, tx, `SELECT status, count(*) FROM tasks GROUP BY status`)
}

func countByStatusTx(ctx context.Context, tx *sql.Tx, query string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}

// -- events --

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     int64
}

// LatestEvents returns events newest-first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// -- helpers --

func marshalAgenda(items []domain.AgendaItem) (string, error) {
	if items == nil {
		items = []domain.AgendaItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
