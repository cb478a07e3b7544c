package engine

import (
	"context"
	"database/sql"

	"momtrack/internal/domain"
)

// Dashboard computes entity counts grouped by status inside one read-only
// transaction, so the four collections are counted against a single
// consistent snapshot. Statuses with a zero count are omitted.
func (e Engine) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.Dashboard{}, err
	}
	defer tx.Rollback()

	var d domain.Dashboard
	if d.Departments, err = e.Repo.CountDepartmentsTx(ctx, tx); err != nil {
		return d, err
	}
	if d.Meetings, err = e.Repo.CountMeetingsTx(ctx, tx); err != nil {
		return d, err
	}
	momCounts, err := e.Repo.CountMOMsByStatusTx(ctx, tx)
	if err != nil {
		return d, err
	}
	d.MOMs = breakout(momCounts)
	taskCounts, err := e.Repo.CountTasksByStatusTx(ctx, tx)
	if err != nil {
		return d, err
	}
	d.Tasks = breakout(taskCounts)
	return d, tx.Commit()
}

func breakout(counts map[string]int) domain.StatusBreakout {
	b := domain.StatusBreakout{ByStatus: counts}
	for _, n := range counts {
		b.Total += n
	}
	return b
}
