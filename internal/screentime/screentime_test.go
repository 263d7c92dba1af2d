package screentime_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"fknsrs.biz/p/sorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/kidsbeats/internal/ctxclock"
	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/internal/migrate"
	"fknsrs.biz/p/kidsbeats/internal/screentime"
)

func init() {
	sorm.SetParameterPrefix("?")
}

func testContext(t *testing.T, at time.Time) context.Context {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "store.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, migrate.Run(ctx, db))

	ctx = ctxdb.WithDB(ctx, db)

	return ctxclock.WithClock(ctx, ctxclock.NewStaticClock(at))
}

func withClock(ctx context.Context, at time.Time) context.Context {
	return ctxclock.WithClock(ctx, ctxclock.NewStaticClock(at))
}

func TestTodayTotalOnlyCountsToday(t *testing.T) {
	morning := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	ctx := testContext(t, morning)

	// yesterday evening
	require.NoError(t, screentime.Log(withClock(ctx, morning.Add(-10*time.Hour)), "video", 1800))

	// today
	require.NoError(t, screentime.Log(ctx, "video", 600))
	require.NoError(t, screentime.Log(withClock(ctx, morning.Add(time.Hour)), "music", 300))

	total, err := screentime.TodayTotal(withClock(ctx, morning.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 900, total)
}

func TestTodayTotalEmpty(t *testing.T) {
	ctx := testContext(t, time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC))

	total, err := screentime.TodayTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestLogIgnoresNonPositiveDurations(t *testing.T) {
	at := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	ctx := testContext(t, at)

	require.NoError(t, screentime.Log(ctx, "video", 0))
	require.NoError(t, screentime.Log(ctx, "video", -5))

	entries, err := screentime.History(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryOrdering(t *testing.T) {
	base := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)
	ctx := testContext(t, base)

	require.NoError(t, screentime.Log(withClock(ctx, base.Add(2*time.Hour)), "music", 120))
	require.NoError(t, screentime.Log(ctx, "video", 60))

	entries, err := screentime.History(ctx, base.Add(-time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "video", entries[0].Activity)
	assert.Equal(t, "music", entries[1].Activity)
}
