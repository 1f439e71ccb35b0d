package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/agroconnect/internal/domain"
	"github.com/vedran77/agroconnect/internal/repository"
)

const conversationColumns = `
	id, farmer_id, farmer_name, shop_id, shop_name,
	last_message, last_sender_id, last_message_at,
	unread_farmer, unread_shop, created_at, updated_at`

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	query := `
		INSERT INTO conversations (id, farmer_id, farmer_name, shop_id, shop_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (farmer_id, shop_id) DO NOTHING
		RETURNING ` + conversationColumns

	stored, err := scanConversation(r.pool.QueryRow(ctx, query,
		uuid.NewString(), conv.Farmer.ID, conv.Farmer.Name, conv.Shop.ID, conv.Shop.Name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Pair already taken, possibly by a concurrent create.
		existing, err := r.GetByParticipants(ctx, conv.Farmer.ID, conv.Shop.ID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("conversation %s/%s vanished after conflict", conv.Farmer.ID, conv.Shop.ID)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) GetByParticipants(ctx context.Context, farmerID, shopID string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE farmer_id = $1 AND shop_id = $2`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, farmerID, shopID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) ListByParticipant(ctx context.Context, role domain.Role, userID string) ([]domain.Conversation, error) {
	column := repository.ParticipantColumn(role)
	if column == "" {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM conversations WHERE %s = $1`, conversationColumns, column), userID)
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

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var (
		conv       domain.Conversation
		lastText   *string
		lastSender *string
		lastAt     *time.Time
	)
	err := row.Scan(
		&conv.ID, &conv.Farmer.ID, &conv.Farmer.Name, &conv.Shop.ID, &conv.Shop.Name,
		&lastText, &lastSender, &lastAt,
		&conv.Unread.Farmer, &conv.Unread.Shop, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastText != nil && lastAt != nil {
		conv.LastMessage = &domain.MessageSummary{Text: *lastText, SentAt: *lastAt}
		if lastSender != nil {
			conv.LastMessage.SenderID = *lastSender
		}
	}
	return &conv, nil
}
