package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	unread := repository.UnreadColumn(msg.SenderRole.Counterpart())
	if unread == "" {
		return fmt.Errorf("unknown sender role %q", msg.SenderRole)
	}

	stored := *msg
	stored.ID = uuid.NewString()
	stored.Status = domain.StatusSent

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, text, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING seq, created_at`
		if err := tx.QueryRow(ctx, insert,
			stored.ID, stored.ConversationID, stored.SenderID, stored.SenderName,
			string(stored.SenderRole), stored.Text, string(stored.Status),
		).Scan(&stored.Seq, &stored.CreatedAt); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}

		update := fmt.Sprintf(`
			UPDATE conversations
			SET last_message = $1, last_sender_id = $2, last_message_at = $3,
				updated_at = $3, %[1]s = %[1]s + 1
			WHERE id = $4`, unread)
		tag, err := tx.Exec(ctx, update, stored.Text, stored.SenderID, stored.CreatedAt, stored.ConversationID)
		if err != nil {
			return fmt.Errorf("updating conversation summary: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrConversationMissing
		}
		return nil
	})
	if err != nil {
		return err
	}

	*msg = stored
	return nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, sender_role, text,
			status, edited, created_at, seq
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg          domain.Message
			role, status string
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &role, &msg.Text,
			&status, &msg.Edited, &msg.CreatedAt, &msg.Seq,
		); err != nil {
			return nil, err
		}
		msg.SenderRole = domain.Role(role)
		msg.Status = domain.MessageStatus(status)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, readerRole domain.Role) (bool, error) {
	unread := repository.UnreadColumn(readerRole)
	if unread == "" {
		return false, fmt.Errorf("unknown reader role %q", readerRole)
	}

	var changed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Serializes with Append, whose message insert key-share locks the
		// same row. The message update below then sees every committed send.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, conversationID); err != nil {
			return fmt.Errorf("locking conversation: %w", err)
		}

		msgs, err := tx.Exec(ctx, `
			UPDATE messages SET status = 'read'
			WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'`,
			conversationID, readerID)
		if err != nil {
			return fmt.Errorf("marking messages read: %w", err)
		}

		counter, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE conversations SET %[1]s = 0
			WHERE id = $1 AND %[1]s <> 0`, unread), conversationID)
		if err != nil {
			return fmt.Errorf("resetting unread counter: %w", err)
		}

		changed = msgs.RowsAffected() > 0 || counter.RowsAffected() > 0
		return nil
	})
	return changed, err
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET status = 'delivered'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status = 'sent'`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
