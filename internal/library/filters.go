package library

import (
	"context"
	"database/sql"
	"fmt"

	"fknsrs.biz/p/kidsbeats/internal/ctxdb"
	"fknsrs.biz/p/kidsbeats/models"
)

var (
	ErrInvalidFilterKind = fmt.Errorf("library: invalid content filter kind")
)

func validFilterKind(kind string) bool {
	return kind == models.FilterKindChannel || kind == models.FilterKindArtist
}

// AddContentFilter blocks a channel or artist. Adding the same filter twice
// is a no-op.
func AddContentFilter(ctx context.Context, kind, refID string) error {
	if !validFilterKind(kind) {
		return fmt.Errorf("library.AddContentFilter: %q: %w", kind, ErrInvalidFilterKind)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "insert or ignore into content_filters (kind, ref_id) values (?, ?)", kind, refID); err != nil {
			return fmt.Errorf("library.AddContentFilter: %w", err)
		}

		return nil
	})
}

func RemoveContentFilter(ctx context.Context, kind, refID string) error {
	if !validFilterKind(kind) {
		return fmt.Errorf("library.RemoveContentFilter: %q: %w", kind, ErrInvalidFilterKind)
	}

	return ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "delete from content_filters where kind = ? and ref_id = ?", kind, refID); err != nil {
			return fmt.Errorf("library.RemoveContentFilter: %w", err)
		}

		return nil
	})
}

func ListContentFilters(ctx context.Context) ([]models.ContentFilter, error) {
	rows, err := ctxdb.GetDB(ctx).QueryContext(ctx, "select kind, ref_id from content_filters order by kind, ref_id")
	if err != nil {
		return nil, fmt.Errorf("library.ListContentFilters: %w", err)
	}
	defer rows.Close()

	var filters []models.ContentFilter
	for rows.Next() {
		var f models.ContentFilter
		if err := rows.Scan(&f.Kind, &f.RefID); err != nil {
			return nil, fmt.Errorf("library.ListContentFilters: %w", err)
		}
		filters = append(filters, f)
	}

	return filters, rows.Err()
}
