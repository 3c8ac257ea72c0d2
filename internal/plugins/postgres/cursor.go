package postgres

import (
	"context"
	"database/sql"
	"errors"

	"sanuda/internal/core/domain"

	"github.com/google/uuid"
)

// CursorRepo keeps read cursors on the membership rows, so a cursor exists
// exactly as long as the membership does.
type CursorRepo struct {
	db *sql.DB
}

var _ domain.CursorRepository = (*CursorRepo)(nil)

func NewCursorRepo(db *sql.DB) *CursorRepo {
	return &CursorRepo{db: db}
}

func (r *CursorRepo) Get(ctx context.Context, userID string, convID uuid.UUID) (*domain.ReadCursor, error) {
	query := `
		SELECT last_read_message_id, last_read_seq, last_read_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2`
	cur := &domain.ReadCursor{UserID: userID, ConversationID: convID}
	var msgID uuid.NullUUID
	var readAt sql.NullTime
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, convID, userID).
		Scan(&msgID, &cur.LastReadSeq, &readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	if msgID.Valid {
		cur.LastReadMsgID = msgID.UUID
	}
	if readAt.Valid {
		cur.LastReadAt = readAt.Time
	}
	return cur, nil
}

// Advance moves the cursor to msgID only when that message's seq is ahead of
// the stored one. The guard in the WHERE clause makes stale or duplicate
// advances a no-op without a read-modify-write race.
func (r *CursorRepo) Advance(ctx context.Context, userID string, convID, msgID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversation_members cm
		SET last_read_message_id = m.id,
		    last_read_seq = m.seq,
		    last_read_at = NOW()
		FROM messages m
		WHERE cm.conversation_id = $1
		  AND cm.user_id = $2
		  AND m.id = $3
		  AND m.conversation_id = cm.conversation_id
		  AND m.seq > cm.last_read_seq`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, convID, userID, msgID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
