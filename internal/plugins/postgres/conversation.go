package postgres

import (
	"context"
	"database/sql"

	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

type ConversationRepo struct {
	db *sql.DB
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetMembers returns the current member ids. A conversation with no member
// rows does not exist as far as this core is concerned.
func (r *ConversationRepo) GetMembers(ctx context.Context, convID uuid.UUID) ([]string, error) {
	query := `
		SELECT user_id
		FROM conversation_members
		WHERE conversation_id = $1`
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.ErrConversationNotFound
	}
	return members, nil
}

func (r *ConversationRepo) ListUserConversations(ctx context.Context, userID string) ([]uuid.UUID, error) {
	query := `
		SELECT conversation_id
		FROM conversation_members
		WHERE user_id = $1`
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		convs = append(convs, id)
	}
	return convs, rows.Err()
}

func (r *ConversationRepo) SetLatestMessage(ctx context.Context, convID, msgID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET latest_message_id = $2
		WHERE id = $1`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, convID, msgID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
