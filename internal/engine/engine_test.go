package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"momtrack/internal/config"
	"momtrack/internal/db"
	"momtrack/internal/domain"
	"momtrack/internal/engine"
	"momtrack/internal/migrate"
	"momtrack/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedMeeting(t *testing.T, env testEnv) (domain.Department, domain.Meeting) {
	t.Helper()
	dept, err := env.Engine.CreateDepartment(env.Ctx, "Engineering", "", "tester")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	meeting, err := env.Engine.CreateMeeting(env.Ctx, engine.MeetingCreateOptions{
		Title:        "Sprint planning",
		DepartmentID: dept.ID,
		Date:         "2024-03-01",
		Attendees:    []string{"alice", "bob"},
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	return dept, meeting
}

func errKind(t *testing.T, err error) engine.Kind {
	t.Helper()
	var ee *engine.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected engine error, got %v", err)
	}
	return ee.Kind
}

func TestMOMWorkflow(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)

	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	if mom.Status != engine.MOMDraft {
		t.Fatalf("expected draft, got %s", mom.Status)
	}

	mom, err = env.Engine.AddAgendaItem(env.Ctx, mom.ID, "Budget review", "Q2 spend", "approve 10k", "tester")
	if err != nil {
		t.Fatalf("add agenda item: %v", err)
	}
	if len(mom.AgendaItems) != 1 || mom.AgendaItems[0].Title != "Budget review" {
		t.Fatalf("unexpected agenda: %+v", mom.AgendaItems)
	}

	mom, err = env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if mom.Status != engine.MOMPendingReview {
		t.Fatalf("expected pending_review, got %s", mom.Status)
	}

	// Edits are draft-only.
	_, err = env.Engine.AddAgendaItem(env.Ctx, mom.ID, "Late item", "", "", "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}

	mom, err = env.Engine.ValidateMOM(env.Ctx, mom.ID, "carol", "tester")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if mom.Status != engine.MOMValidated {
		t.Fatalf("expected validated, got %s", mom.Status)
	}
	if mom.ValidatedBy == nil || *mom.ValidatedBy != "carol" {
		t.Fatalf("expected validated_by carol, got %v", mom.ValidatedBy)
	}

	// validated is terminal.
	_, err = env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRejectAndRevise(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)
	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	if _, err := env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Rejection requires a reason, and the failed attempt must not move the
	// document.
	_, err = env.Engine.RejectMOM(env.Ctx, mom.ID, "carol", "", "tester")
	if errKind(t, err) != engine.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	cur, err := env.Engine.Repo.GetMOM(env.Ctx, mom.ID)
	if err != nil {
		t.Fatalf("get mom: %v", err)
	}
	if cur.Status != engine.MOMPendingReview || cur.RejectionReason != nil {
		t.Fatalf("document mutated by failed reject: %+v", cur)
	}

	rejected, err := env.Engine.RejectMOM(env.Ctx, mom.ID, "carol", "missing attendees", "tester")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != engine.MOMRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "missing attendees" {
		t.Fatalf("expected reason, got %v", rejected.RejectionReason)
	}

	// Revision reopens as draft and clears the review outcome.
	revised, err := env.Engine.ReviseMOM(env.Ctx, mom.ID, "tester")
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if revised.Status != engine.MOMDraft {
		t.Fatalf("expected draft, got %s", revised.Status)
	}
	if revised.RejectionReason != nil || revised.ValidatedBy != nil {
		t.Fatalf("review fields not cleared: %+v", revised)
	}
}

func TestUpdateSummaryDraftOnly(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)
	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}

	mom, err = env.Engine.UpdateSummary(env.Ctx, mom.ID, "agreed on Q2 budget", "tester")
	if err != nil {
		t.Fatalf("update summary: %v", err)
	}
	if mom.Summary != "agreed on Q2 budget" {
		t.Fatalf("expected summary set, got %q", mom.Summary)
	}

	if _, err := env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = env.Engine.UpdateSummary(env.Ctx, mom.ID, "late edit", "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	cur, err := env.Engine.Repo.GetMOM(env.Ctx, mom.ID)
	if err != nil {
		t.Fatalf("get mom: %v", err)
	}
	if cur.Summary != "agreed on Q2 budget" {
		t.Fatalf("summary mutated by rejected edit: %q", cur.Summary)
	}
}

func TestMOMForMeeting(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)

	// A meeting without minutes reports not found, as does a missing meeting.
	_, err := env.Engine.MOMForMeeting(env.Ctx, meeting.ID)
	if errKind(t, err) != engine.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = env.Engine.MOMForMeeting(env.Ctx, "no-such-meeting")
	if errKind(t, err) != engine.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	got, err := env.Engine.MOMForMeeting(env.Ctx, meeting.ID)
	if err != nil {
		t.Fatalf("mom for meeting: %v", err)
	}
	if got.ID != mom.ID {
		t.Fatalf("expected %s, got %s", mom.ID, got.ID)
	}
}

func TestSingleActiveMOMPerMeeting(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)
	first, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}

	_, err = env.Engine.CreateMOM(env.Ctx, meeting.ID, "bob", "", "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}

	// A validated document no longer blocks a fresh one.
	if _, err := env.Engine.SubmitMOM(env.Ctx, first.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ValidateMOM(env.Ctx, first.ID, "carol", "tester"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "bob", "", "tester"); err != nil {
		t.Fatalf("create after validation: %v", err)
	}
}

func TestSingleActiveMOMDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.SingleActiveMOM = false
	env := newTestEnvWithConfig(t, cfg)
	_, meeting := seedMeeting(t, env)
	if _, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester"); err != nil {
		t.Fatalf("create mom: %v", err)
	}
	if _, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "bob", "", "tester"); err != nil {
		t.Fatalf("second create with guard off: %v", err)
	}
}

func TestConcurrentSubmitSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)
	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester")
		}(i)
	}
	wg.Wait()

	var okCount, conflictCount int
	for _, err := range errs {
		if err == nil {
			okCount++
			continue
		}
		var ee *engine.Error
		if errors.As(err, &ee) && ee.Kind == engine.KindInvalidState {
			conflictCount++
			continue
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if okCount != 1 || conflictCount != 1 {
		t.Fatalf("expected one winner and one conflict, got ok=%d conflict=%d", okCount, conflictCount)
	}
	cur, err := env.Engine.Repo.GetMOM(env.Ctx, mom.ID)
	if err != nil {
		t.Fatalf("get mom: %v", err)
	}
	if cur.Status != engine.MOMPendingReview {
		t.Fatalf("expected pending_review, got %s", cur.Status)
	}
}

func TestDepartmentNameUnique(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateDepartment(env.Ctx, "Finance", "", "tester"); err != nil {
		t.Fatalf("create department: %v", err)
	}
	_, err := env.Engine.CreateDepartment(env.Ctx, "Finance", "", "tester")
	if errKind(t, err) != engine.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDeleteDepartmentProtected(t *testing.T) {
	env := newTestEnv(t)
	dept, _ := seedMeeting(t, env)
	err := env.Engine.DeleteDepartment(env.Ctx, dept.ID, "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}

	empty, err := env.Engine.CreateDepartment(env.Ctx, "Legal", "", "tester")
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	if err := env.Engine.DeleteDepartment(env.Ctx, empty.ID, "tester"); err != nil {
		t.Fatalf("delete empty department: %v", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	dept, _ := seedMeeting(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:        "Prepare budget report",
		DepartmentID: dept.ID,
		AssignedTo:   "bob",
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != engine.TaskOpen || task.Priority != "medium" {
		t.Fatalf("unexpected defaults: %+v", task)
	}

	task, err = env.Engine.StartTask(env.Ctx, task.ID, "tester")
	if err != nil || task.Status != engine.TaskInProgress {
		t.Fatalf("start: %v status=%s", err, task.Status)
	}
	task, err = env.Engine.CancelTask(env.Ctx, task.ID, "tester")
	if err != nil || task.Status != engine.TaskCancelled {
		t.Fatalf("cancel: %v status=%s", err, task.Status)
	}

	// Terminal states admit no further transitions or edits.
	_, err = env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
	title := "Rename"
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &title, ActorID: "tester"})
	if errKind(t, err) != engine.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestTaskDirectComplete(t *testing.T) {
	env := newTestEnv(t)
	dept, _ := seedMeeting(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:        "Quick fix",
		DepartmentID: dept.ID,
		AssignedTo:   "bob",
		Priority:     "high",
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	// open -> completed is allowed without an in_progress step.
	task, err = env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil || task.Status != engine.TaskCompleted {
		t.Fatalf("complete: %v status=%s", err, task.Status)
	}
}

func TestTaskUpdateFields(t *testing.T) {
	env := newTestEnv(t)
	dept, _ := seedMeeting(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:        "Follow up",
		DepartmentID: dept.ID,
		AssignedTo:   "bob",
		DueDate:      "2024-03-15",
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	empty := ""
	newAssignee := "carol"
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:         task.ID,
		AssignedTo: &newAssignee,
		DueDate:    &empty,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.AssignedTo != "carol" {
		t.Fatalf("expected carol, got %s", task.AssignedTo)
	}
	if task.DueDate != nil {
		t.Fatalf("expected due date cleared, got %v", *task.DueDate)
	}

	// Title cannot be blanked.
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &empty, ActorID: "tester"})
	if errKind(t, err) != engine.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTaskLinkedToMOM(t *testing.T) {
	env := newTestEnv(t)
	dept, meeting := seedMeeting(t, env)
	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:        "Action item",
		DepartmentID: dept.ID,
		AssignedTo:   "bob",
		MOMID:        mom.ID,
		ActorID:      "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.MOMID == nil || *task.MOMID != mom.ID {
		t.Fatalf("expected mom link, got %v", task.MOMID)
	}

	linked, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{MOMID: mom.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != task.ID {
		t.Fatalf("unexpected filter result: %+v", linked)
	}

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:        "Orphan",
		DepartmentID: dept.ID,
		AssignedTo:   "bob",
		MOMID:        "no-such-mom",
		ActorID:      "tester",
	})
	if errKind(t, err) != engine.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDashboardAggregation(t *testing.T) {
	env := newTestEnv(t)
	dept, meeting := seedMeeting(t, env)

	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	if _, err := env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	for _, title := range []string{"one", "two"} {
		if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
			Title:        title,
			DepartmentID: dept.ID,
			AssignedTo:   "bob",
			ActorID:      "tester",
		}); err != nil {
			t.Fatalf("create task %s: %v", title, err)
		}
	}

	dash, err := env.Engine.Dashboard(env.Ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Departments != 1 || dash.Meetings != 1 {
		t.Fatalf("unexpected entity counts: %+v", dash)
	}
	if dash.MOMs.Total != 1 || dash.MOMs.ByStatus["pending_review"] != 1 {
		t.Fatalf("unexpected mom counts: %+v", dash.MOMs)
	}
	if dash.Tasks.Total != 2 || dash.Tasks.ByStatus["open"] != 2 {
		t.Fatalf("unexpected task counts: %+v", dash.Tasks)
	}
}

func TestEventLog(t *testing.T) {
	env := newTestEnv(t)
	_, meeting := seedMeeting(t, env)
	mom, err := env.Engine.CreateMOM(env.Ctx, meeting.ID, "alice", "", "tester")
	if err != nil {
		t.Fatalf("create mom: %v", err)
	}
	if _, err := env.Engine.SubmitMOM(env.Ctx, mom.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "mom", EntityID: mom.ID})
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Type != "mom.submitted" || events[1].Type != "mom.created" {
		t.Fatalf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].ActorID != "tester" {
		t.Fatalf("expected actor tester, got %s", events[0].ActorID)
	}
}
