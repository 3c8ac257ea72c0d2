package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sanuda/internal/core/domain"
	"sanuda/internal/core/services"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
	tx *services.TxManager
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func NewMessageRepo(db *sql.DB, tx *services.TxManager) *MessageRepo {
	return &MessageRepo{db: db, tx: tx}
}

// Append allocates the next per-conversation sequence and inserts the message
// in one transaction, so Seq order and insert order can never diverge.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	return r.tx.WithTx(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, r.db)

		seqQuery := `
			INSERT INTO conversation_sequences (conversation_id, last_seq)
			VALUES ($1, 1)
			ON CONFLICT (conversation_id)
			DO UPDATE SET last_seq = conversation_sequences.last_seq + 1
			RETURNING last_seq`
		if err := exec.QueryRowContext(txCtx, seqQuery, msg.ConversationID).Scan(&msg.Seq); err != nil {
			return err
		}

		insertQuery := `
			INSERT INTO messages (id, conversation_id, sender_id, content, content_type, media_url, seq, deleted, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
			RETURNING created_at`
		return exec.QueryRowContext(txCtx, insertQuery,
			msg.ID, msg.ConversationID, msg.SenderID,
			msg.Content, msg.ContentType, msg.MediaURL, msg.Seq,
		).Scan(&msg.CreatedAt)
	})
}

func (r *MessageRepo) GetMessage(ctx context.Context, msgID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, content_type, media_url, seq, deleted, created_at
		FROM messages
		WHERE id = $1`
	msg, err := scanMessage(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, msgID))
	if err != nil {
		return nil, err
	}
	if err := r.loadReceipts(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) AddDelivered(ctx context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error) {
	query := `
		INSERT INTO message_receipts (message_id, user_id, delivered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, msgID, userID, at)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *MessageRepo) AddRead(ctx context.Context, msgID uuid.UUID, userID string, at time.Time) (bool, error) {
	query := `
		UPDATE message_receipts
		SET read_at = $3
		WHERE message_id = $1 AND user_id = $2 AND read_at IS NULL`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, msgID, userID, at)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	// No row updated: either already read (no-op) or no delivery receipt
	// exists yet, which is a read-before-delivered ordering violation.
	var readAt sql.NullTime
	err = GetExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT read_at FROM message_receipts WHERE message_id = $1 AND user_id = $2`,
		msgID, userID).Scan(&readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrInvalidStateTransition
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (r *MessageRepo) ListUndelivered(ctx context.Context, convID uuid.UUID, userID string) ([]*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.content_type, m.media_url, m.seq, m.deleted, m.created_at
		FROM messages m
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND m.deleted = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM message_receipts r
			WHERE r.message_id = m.id AND r.user_id = $2
		  )
		ORDER BY m.seq ASC`
	return r.queryMessages(ctx, query, convID, userID)
}

func (r *MessageRepo) ListUnreadUpTo(ctx context.Context, convID uuid.UUID, userID string, cutoffMsgID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.content_type, m.media_url, m.seq, m.deleted, m.created_at
		FROM messages m
		WHERE m.conversation_id = $1
		  AND m.sender_id <> $2
		  AND m.deleted = FALSE
		  AND m.seq <= (SELECT seq FROM messages WHERE id = $3)
		  AND NOT EXISTS (
			SELECT 1 FROM message_receipts r
			WHERE r.message_id = m.id AND r.user_id = $2 AND r.read_at IS NOT NULL
		  )
		ORDER BY m.seq ASC`
	return r.queryMessages(ctx, query, convID, userID, cutoffMsgID)
}

func (r *MessageRepo) CountUnreadAfter(ctx context.Context, convID uuid.UUID, userID string, afterSeq int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND deleted = FALSE
		  AND seq > $3`
	var n int
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, convID, userID, afterSeq).Scan(&n)
	return n, err
}

func (r *MessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if err := r.loadReceipts(ctx, msg); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

func (r *MessageRepo) loadReceipts(ctx context.Context, msg *domain.Message) error {
	query := `
		SELECT user_id, delivered_at, read_at
		FROM message_receipts
		WHERE message_id = $1`
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, msg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	msg.DeliveredTo = make(map[string]time.Time)
	msg.ReadBy = make(map[string]time.Time)
	for rows.Next() {
		var userID string
		var deliveredAt time.Time
		var readAt sql.NullTime
		if err := rows.Scan(&userID, &deliveredAt, &readAt); err != nil {
			return err
		}
		msg.DeliveredTo[userID] = deliveredAt
		if readAt.Valid {
			msg.ReadBy[userID] = readAt.Time
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var mediaURL sql.NullString
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID,
		&msg.Content, &msg.ContentType, &mediaURL,
		&msg.Seq, &msg.Deleted, &msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if mediaURL.Valid {
		msg.MediaURL = mediaURL.String
	}
	return &msg, nil
}
