package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"chatclient/internal/domain"
)

// PreviewRepo stores the last known conversation list so it can be shown
// before the first successful refresh.
type PreviewRepo struct {
	db *sql.DB
}

func NewPreviewRepo(db *sql.DB) *PreviewRepo {
	return &PreviewRepo{db: db}
}

var _ domain.PreviewCache = (*PreviewRepo)(nil)

// SavePreviews replaces the cached list, preserving its order.
func (r *PreviewRepo) SavePreviews(ctx context.Context, previews []domain.ConversationSummary) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_previews`); err != nil {
		return fmt.Errorf("clear previews: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO conversation_previews
			(user_id, position, name, avatar_url, last_message, last_time, unread_count, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range previews {
		if _, err := stmt.ExecContext(ctx, p.UserID, i, p.Name, p.AvatarURL, p.LastMessage, p.LastTime, p.UnreadCount); err != nil {
			return fmt.Errorf("insert preview %d: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PreviewRepo) LoadPreviews(ctx context.Context) ([]domain.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, name, avatar_url, last_message, last_time, unread_count
		FROM conversation_previews
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load previews: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var p domain.ConversationSummary
		if err := rows.Scan(&p.UserID, &p.Name, &p.AvatarURL, &p.LastMessage, &p.LastTime, &p.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan preview: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate previews: %w", err)
	}
	return out, nil
}
