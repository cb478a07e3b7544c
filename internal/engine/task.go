package engine

import (
	"context"
	"time"

	"momtrack/internal/domain"
	"momtrack/internal/events"
	"momtrack/internal/repo"
)

// Task lifecycle states.
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// taskTransitions: open -> in_progress -> completed, open -> completed
// directly, and cancel from either non-terminal state. completed and
// cancelled are terminal.
var taskTransitions = map[string][]string{
	TaskOpen:       {TaskInProgress, TaskCompleted, TaskCancelled},
	TaskInProgress: {TaskCompleted, TaskCancelled},
	TaskCompleted:  {},
	TaskCancelled:  {},
}

func taskTransitionAllowed(from, to string) bool {
	for _, t := range taskTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func taskTerminal(status string) bool {
	return status == TaskCompleted || status == TaskCancelled
}

func validTaskStatus(s string) bool {
	_, ok := taskTransitions[s]
	return ok
}

// Task priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

func validPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title        string
	DepartmentID string
	AssignedTo   string
	Description  string
	MOMID        string
	DueDate      string
	Priority     string
	ActorID      string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, invalidArgument("title is required")
	}
	if opts.DepartmentID == "" {
		return domain.Task{}, invalidArgument("department_id is required")
	}
	if opts.AssignedTo == "" {
		return domain.Task{}, invalidArgument("assigned_to is required")
	}
	if opts.Priority == "" {
		opts.Priority = e.defaultPriority()
	}
	if !validPriority(opts.Priority) {
		return domain.Task{}, invalidArgument("unknown priority %q", opts.Priority)
	}
	if _, err := e.Repo.GetDepartment(ctx, opts.DepartmentID); err != nil {
		return domain.Task{}, wrapNotFound(err, "department %q not found", opts.DepartmentID)
	}
	if opts.MOMID != "" {
		if _, err := e.Repo.GetMOM(ctx, opts.MOMID); err != nil {
			return domain.Task{}, wrapNotFound(err, "minutes %q not found", opts.MOMID)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:           newID(),
		Title:        opts.Title,
		Description:  opts.Description,
		DepartmentID: opts.DepartmentID,
		AssignedTo:   opts.AssignedTo,
		MOMID:        optionalString(opts.MOMID),
		DueDate:      optionalString(opts.DueDate),
		Status:       TaskOpen,
		Priority:     opts.Priority,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
		"title":       t.Title,
		"assigned_to": t.AssignedTo,
		"priority":    t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) defaultPriority() string {
	if e.Config != nil && e.Config.Tasks.DefaultPriority != "" {
		return e.Config.Tasks.DefaultPriority
	}
	return PriorityMedium
}

// TaskUpdateOptions encapsulates allowed partial updates. Nil fields are left
// unchanged; a pointer to the empty string clears an optional field.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	AssignedTo  *string
	DueDate     *string
	Priority    *string
	ActorID     string
}

// UpdateTask mutates the editable fields of a non-terminal task.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, wrapNotFound(err, "task %q not found", opts.ID)
	}
	if taskTerminal(t.Status) {
		return t, invalidState("task %s: cannot update a %s task", t.ID, t.Status)
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return t, invalidArgument("title cannot be empty")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.AssignedTo != nil {
		if *opts.AssignedTo == "" {
			return t, invalidArgument("assigned_to cannot be empty")
		}
		t.AssignedTo = *opts.AssignedTo
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = opts.DueDate
		}
	}
	if opts.Priority != nil {
		if !validPriority(*opts.Priority) {
			return t, invalidArgument("unknown priority %q", *opts.Priority)
		}
		t.Priority = *opts.Priority
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateTaskFrom(ctx, tx, t, t.Status)
	if err != nil {
		return t, err
	}
	if !ok {
		cur, err := e.Repo.GetTaskTx(ctx, tx, t.ID)
		if err != nil {
			return t, wrapNotFound(err, "task %q not found", t.ID)
		}
		return cur, invalidState("task %s: cannot update a %s task", t.ID, cur.Status)
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, opts.ActorID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// StartTask moves an open task to in progress.
func (e Engine) StartTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, id, TaskInProgress, actorID, "task.started")
}

// CompleteTask finishes an open or in-progress task.
func (e Engine) CompleteTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, id, TaskCompleted, actorID, "task.completed")
}

// CancelTask cancels an open or in-progress task.
func (e Engine) CancelTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, id, TaskCancelled, actorID, "task.cancelled")
}

// DeleteTask removes a task unconditionally, regardless of state.
func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return wrapNotFound(err, "task %q not found", id)
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTasks lists tasks, optionally filtered; a status filter must name a
// valid lifecycle state.
func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Status != "" && !validTaskStatus(f.Status) {
		return nil, invalidArgument("unknown status %q", f.Status)
	}
	return e.Repo.ListTasks(ctx, f)
}

// transitionTask performs one lifecycle step as an atomic check-and-set,
// mirroring transitionMOM.
func (e Engine) transitionTask(ctx context.Context, id, target, actorID, evtType string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, wrapNotFound(err, "task %q not found", id)
	}
	from := t.Status
	if !taskTransitionAllowed(from, target) {
		return t, invalidState("task %s: cannot move from %s to %s", id, from, target)
	}
	t.Status = target
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateTaskFrom(ctx, tx, t, from)
	if err != nil {
		return t, err
	}
	if !ok {
		cur, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return t, wrapNotFound(err, "task %q not found", id)
		}
		return cur, invalidState("task %s: cannot move from %s to %s", id, cur.Status, target)
	}
	if err := e.Events.Append(ctx, tx, evtType, "task", id, actorID, events.EventPayload{
		"from": from,
		"to":   target,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
