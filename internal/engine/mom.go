package engine

import (
	"context"
	"errors"
	"time"

	"momtrack/internal/domain"
	"momtrack/internal/events"
	"momtrack/internal/repo"
)

// Minutes-of-meeting workflow states.
const (
	MOMDraft         = "draft"
	MOMPendingReview = "pending_review"
	MOMValidated     = "validated"
	MOMRejected      = "rejected"
)

// momTransitions is the full review workflow: draft -> pending_review ->
// validated | rejected, rejected -> draft (revise). validated is terminal.
var momTransitions = map[string][]string{
	MOMDraft:         {MOMPendingReview},
	MOMPendingReview: {MOMValidated, MOMRejected},
	MOMRejected:      {MOMDraft},
	MOMValidated:     {},
}

func momTransitionAllowed(from, to string) bool {
	for _, t := range momTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// MOMStatuses lists the valid workflow states.
func MOMStatuses() []string {
	return []string{MOMDraft, MOMPendingReview, MOMValidated, MOMRejected}
}

func validMOMStatus(s string) bool {
	_, ok := momTransitions[s]
	return ok
}

// CreateMOM opens a draft minutes document for an existing meeting.
func (e Engine) CreateMOM(ctx context.Context, meetingID, preparedBy, summary, actorID string) (domain.MinutesOfMeeting, error) {
	if preparedBy == "" {
		return domain.MinutesOfMeeting{}, invalidArgument("prepared_by is required")
	}
	if _, err := e.Repo.GetMeeting(ctx, meetingID); err != nil {
		return domain.MinutesOfMeeting{}, wrapNotFound(err, "meeting %q not found", meetingID)
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.MinutesOfMeeting{
		ID:          newID(),
		MeetingID:   meetingID,
		PreparedBy:  preparedBy,
		AgendaItems: []domain.AgendaItem{},
		Summary:     summary,
		Status:      MOMDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MinutesOfMeeting{}, err
	}
	defer tx.Rollback()
	if e.Config != nil && e.Config.Governance.SingleActiveMOM {
		active, err := e.Repo.ActiveMOMForMeeting(ctx, tx, meetingID)
		if err == nil {
			return domain.MinutesOfMeeting{}, invalidState("meeting %s already has an active minutes document %s (status %s)", meetingID, active.ID, active.Status)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.MinutesOfMeeting{}, err
		}
	}
	if err := e.Repo.InsertMOM(ctx, tx, m); err != nil {
		return domain.MinutesOfMeeting{}, err
	}
	if err := e.Events.Append(ctx, tx, "mom.created", "mom", m.ID, actorID, events.EventPayload{
		"meeting_id":  m.MeetingID,
		"prepared_by": m.PreparedBy,
	}); err != nil {
		return domain.MinutesOfMeeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MinutesOfMeeting{}, err
	}
	return m, nil
}

// AddAgendaItem appends an item to a draft document. The agenda list is
// append-only: no engine operation removes items.
func (e Engine) AddAgendaItem(ctx context.Context, momID, title, discussion, decisions, actorID string) (domain.MinutesOfMeeting, error) {
	if title == "" {
		return domain.MinutesOfMeeting{}, invalidArgument("title is required")
	}
	return e.mutateDraftMOM(ctx, momID, actorID, "mom.agenda_item.added", events.EventPayload{"title": title},
		func(m *domain.MinutesOfMeeting) {
			m.AgendaItems = append(m.AgendaItems, domain.AgendaItem{
				Title:      title,
				Discussion: discussion,
				Decisions:  decisions,
			})
		})
}

// UpdateSummary replaces the summary of a draft document.
func (e Engine) UpdateSummary(ctx context.Context, momID, summary, actorID string) (domain.MinutesOfMeeting, error) {
	return e.mutateDraftMOM(ctx, momID, actorID, "mom.summary.updated", nil,
		func(m *domain.MinutesOfMeeting) {
			m.Summary = summary
		})
}

// SubmitMOM moves a draft to pending review.
func (e Engine) SubmitMOM(ctx context.Context, momID, actorID string) (domain.MinutesOfMeeting, error) {
	return e.transitionMOM(ctx, momID, MOMPendingReview, actorID, "mom.submitted", nil, nil)
}

// ValidateMOM approves a document that is pending review.
func (e Engine) ValidateMOM(ctx context.Context, momID, validatedBy, actorID string) (domain.MinutesOfMeeting, error) {
	if validatedBy == "" {
		return domain.MinutesOfMeeting{}, invalidArgument("validated_by is required")
	}
	return e.transitionMOM(ctx, momID, MOMValidated, actorID, "mom.validated",
		events.EventPayload{"validated_by": validatedBy},
		func(m *domain.MinutesOfMeeting) {
			m.ValidatedBy = &validatedBy
		})
}

// RejectMOM sends a document that is pending review back with a reason.
func (e Engine) RejectMOM(ctx context.Context, momID, rejectedBy, reason, actorID string) (domain.MinutesOfMeeting, error) {
	if rejectedBy == "" {
		return domain.MinutesOfMeeting{}, invalidArgument("rejected_by is required")
	}
	if reason == "" {
		return domain.MinutesOfMeeting{}, invalidArgument("reason is required")
	}
	return e.transitionMOM(ctx, momID, MOMRejected, actorID, "mom.rejected",
		events.EventPayload{"rejected_by": rejectedBy, "reason": reason},
		func(m *domain.MinutesOfMeeting) {
			m.ValidatedBy = &rejectedBy
			m.RejectionReason = &reason
		})
}

// ReviseMOM reopens a rejected document as a draft, clearing the rejection
// fields so the next review cycle starts clean.
func (e Engine) ReviseMOM(ctx context.Context, momID, actorID string) (domain.MinutesOfMeeting, error) {
	return e.transitionMOM(ctx, momID, MOMDraft, actorID, "mom.revised", nil,
		func(m *domain.MinutesOfMeeting) {
			m.ValidatedBy = nil
			m.RejectionReason = nil
		})
}

// ListMOMs lists documents, optionally filtered by a valid workflow status.
func (e Engine) ListMOMs(ctx context.Context, status string) ([]domain.MinutesOfMeeting, error) {
	if status != "" && !validMOMStatus(status) {
		return nil, invalidArgument("unknown status %q", status)
	}
	return e.Repo.ListMOMs(ctx, status)
}

// MOMForMeeting returns the most recent minutes document for a meeting.
func (e Engine) MOMForMeeting(ctx context.Context, meetingID string) (domain.MinutesOfMeeting, error) {
	if _, err := e.Repo.GetMeeting(ctx, meetingID); err != nil {
		return domain.MinutesOfMeeting{}, wrapNotFound(err, "meeting %q not found", meetingID)
	}
	m, err := e.Repo.MOMForMeeting(ctx, meetingID)
	if err != nil {
		return domain.MinutesOfMeeting{}, wrapNotFound(err, "meeting %q has no minutes document", meetingID)
	}
	return m, nil
}

// transitionMOM performs one workflow step as an atomic check-and-set: the
// precondition is validated against the transition table, then the write is
// guarded on the prior status so racing transitions cannot both succeed.
func (e Engine) transitionMOM(ctx context.Context, momID, target, actorID, evtType string, payload events.EventPayload, mutate func(*domain.MinutesOfMeeting)) (domain.MinutesOfMeeting, error) {
	m, err := e.Repo.GetMOM(ctx, momID)
	if err != nil {
		return m, wrapNotFound(err, "minutes %q not found", momID)
	}
	from := m.Status
	if !momTransitionAllowed(from, target) {
		return m, invalidState("minutes %s: cannot move from %s to %s", momID, from, target)
	}
	if mutate != nil {
		mutate(&m)
	}
	m.Status = target
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateMOMFrom(ctx, tx, m, from)
	if err != nil {
		return m, err
	}
	if !ok {
		cur, err := e.Repo.GetMOMTx(ctx, tx, momID)
		if err != nil {
			return m, wrapNotFound(err, "minutes %q not found", momID)
		}
		return cur, invalidState("minutes %s: cannot move from %s to %s", momID, cur.Status, target)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["from"] = from
	payload["to"] = target
	if err := e.Events.Append(ctx, tx, evtType, "mom", momID, actorID, payload); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// mutateDraftMOM applies an in-place edit that is only legal while the
// document is in draft, guarded the same way as transitions.
func (e Engine) mutateDraftMOM(ctx context.Context, momID, actorID, evtType string, payload events.EventPayload, mutate func(*domain.MinutesOfMeeting)) (domain.MinutesOfMeeting, error) {
	m, err := e.Repo.GetMOM(ctx, momID)
	if err != nil {
		return m, wrapNotFound(err, "minutes %q not found", momID)
	}
	if m.Status != MOMDraft {
		return m, invalidState("minutes %s: can only edit in %s status, current: %s", momID, MOMDraft, m.Status)
	}
	mutate(&m)
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateMOMFrom(ctx, tx, m, MOMDraft)
	if err != nil {
		return m, err
	}
	if !ok {
		cur, err := e.Repo.GetMOMTx(ctx, tx, momID)
		if err != nil {
			return m, wrapNotFound(err, "minutes %q not found", momID)
		}
		return cur, invalidState("minutes %s: can only edit in %s status, current: %s", momID, MOMDraft, cur.Status)
	}
	if err := e.Events.Append(ctx, tx, evtType, "mom", momID, actorID, payload); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}
