package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
)

const conversationColumns = `
	id, farmer_id, farmer_name, shop_id, shop_name,
	last_message, last_sender_id, last_message_at,
	unread_farmer, unread_shop, created_at, updated_at`

type ConversationRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db, now: time.Now}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	now := r.now().UTC().UnixNano()
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations
			(id, farmer_id, farmer_name, shop_id, shop_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conv.Farmer.ID, conv.Farmer.Name, conv.Shop.ID, conv.Shop.Name, now, now,
	)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	stored, err := r.GetByParticipants(ctx, conv.Farmer.ID, conv.Shop.ID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("conversation %s/%s missing after insert", conv.Farmer.ID, conv.Shop.ID)
	}
	return stored, n > 0, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) GetByParticipants(ctx context.Context, farmerID, shopID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE farmer_id = ? AND shop_id = ?`, farmerID, shopID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, role domain.Role, userID string) ([]domain.Conversation, error) {
	column := repository.ParticipantColumn(role)
	if column == "" {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM conversations WHERE %s = ?`, conversationColumns, column), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var (
		conv                 domain.Conversation
		lastText, lastSender sql.NullString
		lastAt               sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&conv.ID, &conv.Farmer.ID, &conv.Farmer.Name, &conv.Shop.ID, &conv.Shop.Name,
		&lastText, &lastSender, &lastAt,
		&conv.Unread.Farmer, &conv.Unread.Shop, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	if lastText.Valid && lastAt.Valid {
		conv.LastMessage = &domain.MessageSummary{
			Text:     lastText.String,
			SenderID: lastSender.String,
			SentAt:   fromNanos(lastAt.Int64),
		}
	}
	return &conv, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
