package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
)

type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

// withTx runs fn in a transaction and commits only if fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	unread := repository.UnreadColumn(msg.SenderRole.Counterpart())
	if unread == "" {
		return fmt.Errorf("unknown sender role %q", msg.SenderRole)
	}

	stored := *msg
	stored.ID = uuid.NewString()
	stored.Status = domain.StatusSent

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// The stamp is taken under the write lock so it never runs behind seq.
		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, stored.ConversationID,
		).Scan(&last); err != nil {
			return fmt.Errorf("reading last stamp: %w", err)
		}
		now := r.now().UTC().UnixNano()
		if last.Valid && now <= last.Int64 {
			now = last.Int64 + 1
		}
		stored.CreatedAt = fromNanos(now)

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, text, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, stored.ConversationID, stored.SenderID, stored.SenderName,
			string(stored.SenderRole), stored.Text, string(stored.Status), now,
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		if stored.Seq, err = res.LastInsertId(); err != nil {
			return err
		}

		upd, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE conversations
			SET last_message = ?, last_sender_id = ?, last_message_at = ?,
				updated_at = ?, %[1]s = %[1]s + 1
			WHERE id = ?`, unread),
			stored.Text, stored.SenderID, now, now, stored.ConversationID,
		)
		if err != nil {
			return fmt.Errorf("updating conversation summary: %w", err)
		}
		if n, err := upd.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
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
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, sender_role, text,
			status, edited, created_at, seq
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg          domain.Message
			role, status string
			createdAt    int64
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &role, &msg.Text,
			&status, &msg.Edited, &createdAt, &msg.Seq,
		); err != nil {
			return nil, err
		}
		msg.SenderRole = domain.Role(role)
		msg.Status = domain.MessageStatus(status)
		msg.CreatedAt = fromNanos(createdAt)
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
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		msgs, err := tx.ExecContext(ctx, `
			UPDATE messages SET status = 'read'
			WHERE conversation_id = ? AND sender_id <> ? AND status <> 'read'`,
			conversationID, readerID)
		if err != nil {
			return fmt.Errorf("marking messages read: %w", err)
		}
		counter, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE conversations SET %[1]s = 0
			WHERE id = ? AND %[1]s <> 0`, unread), conversationID)
		if err != nil {
			return fmt.Errorf("resetting unread counter: %w", err)
		}

		nm, err := msgs.RowsAffected()
		if err != nil {
			return err
		}
		nc, err := counter.RowsAffected()
		if err != nil {
			return err
		}
		changed = nm > 0 || nc > 0
		return nil
	})
	return changed, err
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = 'delivered'
		WHERE conversation_id = ? AND sender_id <> ? AND status = 'sent'`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
