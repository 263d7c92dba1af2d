package screentime

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/models"
)

// Log records a chunk of watching or listening time against the current
// moment. Durations of zero or less are ignored rather than rejected; the
// player reports in coarse ticks and sometimes lands on zero.
func Log(ctx context.Context, activity string, seconds int) error {
	if seconds <= 0 {
		return nil
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("screentime.Log: %w", err)
	}

	entry := models.ScreenTimeLog{
		LoggedAt: now,
		Seconds:  seconds,
		Activity: activity,
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return sorm.CreateRecord(ctx, tx, &entry)
	}); err != nil {
		return fmt.Errorf("screentime.Log: could not create log record: %w", err)
	}

	return nil
}

// TodayTotal sums the seconds logged since midnight in the clock's own
// timezone.
func TodayTotal(ctx context.Context) (int, error) {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("screentime.TodayTotal: %w", err)
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var total sql.NullInt64
	if err := ctxdb.GetDB(ctx).QueryRowContext(ctx,
		"select sum(seconds) from screen_time_logs where logged_at >= ? and logged_at <= ?",
		startOfDay, now,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("screentime.TodayTotal: %w", err)
	}

	return int(total.Int64), nil
}

// History returns the per-entry log between two instants, oldest first.
func History(ctx context.Context, from, to time.Time) ([]models.ScreenTimeLog, error) {
	var entries []models.ScreenTimeLog
	if err := sorm.FindWhere(ctx, ctxdb.GetDB(ctx), &entries, "where logged_at >= ? and logged_at <= ? order by logged_at asc", from, to); err != nil {
		return nil, fmt.Errorf("screentime.History: %w", err)
	}

	return entries, nil
}
