package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"momtrack/internal/config"
	"momtrack/internal/domain"
	"momtrack/internal/events"
	"momtrack/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func newID() string {
	return uuid.New().String()
}

// CreateDepartment inserts a department with a unique, non-empty name.
func (e Engine) CreateDepartment(ctx context.Context, name, description, actorID string) (domain.Department, error) {
	if name == "" {
		return domain.Department{}, invalidArgument("name is required")
	}
	exists, err := e.Repo.DepartmentNameExists(ctx, name)
	if err != nil {
		return domain.Department{}, err
	}
	if exists {
		return domain.Department{}, invalidArgument("department name %q already exists", name)
	}
	d := domain.Department{
		ID:          newID(),
		Name:        name,
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Department{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDepartment(ctx, tx, d); err != nil {
		return domain.Department{}, err
	}
	if err := e.Events.Append(ctx, tx, "department.created", "department", d.ID, actorID, events.EventPayload{"name": d.Name}); err != nil {
		return domain.Department{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Department{}, err
	}
	return d, nil
}

// DeleteDepartment removes a department. With governance.protect_departments
// enabled, deletion is blocked while meetings or tasks still reference it.
func (e Engine) DeleteDepartment(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if e.Config != nil && e.Config.Governance.ProtectDepartments {
		meetings, tasks, err := e.Repo.CountDepartmentRefs(ctx, tx, id)
		if err != nil {
			return err
		}
		if meetings > 0 || tasks > 0 {
			return invalidState("department %s is still referenced by %d meeting(s) and %d task(s)", id, meetings, tasks)
		}
	}
	if err := e.Repo.DeleteDepartment(ctx, tx, id); err != nil {
		return wrapNotFound(err, "department %q not found", id)
	}
	if err := e.Events.Append(ctx, tx, "department.deleted", "department", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// MeetingCreateOptions are parameters for creating a meeting.
type MeetingCreateOptions struct {
	Title        string
	DepartmentID string
	Date         string
	Location     string
	Attendees    []string
	ActorID      string
}

func (e Engine) CreateMeeting(ctx context.Context, opts MeetingCreateOptions) (domain.Meeting, error) {
	if opts.Title == "" {
		return domain.Meeting{}, invalidArgument("title is required")
	}
	if opts.DepartmentID == "" {
		return domain.Meeting{}, invalidArgument("department_id is required")
	}
	if opts.Date == "" {
		return domain.Meeting{}, invalidArgument("date is required")
	}
	if _, err := e.Repo.GetDepartment(ctx, opts.DepartmentID); err != nil {
		return domain.Meeting{}, wrapNotFound(err, "department %q not found", opts.DepartmentID)
	}
	m := domain.Meeting{
		ID:           newID(),
		Title:        opts.Title,
		DepartmentID: opts.DepartmentID,
		Date:         opts.Date,
		Location:     opts.Location,
		Attendees:    opts.Attendees,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Meeting{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMeeting(ctx, tx, m); err != nil {
		return domain.Meeting{}, err
	}
	if err := e.Events.Append(ctx, tx, "meeting.created", "meeting", m.ID, opts.ActorID, events.EventPayload{
		"title":         m.Title,
		"department_id": m.DepartmentID,
	}); err != nil {
		return domain.Meeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Meeting{}, err
	}
	return m, nil
}
