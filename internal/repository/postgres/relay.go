package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/agroconnect/internal/feed"
	"go.uber.org/zap"
)

// NotifyChannel is the LISTEN/NOTIFY channel used for change signals.
const NotifyChannel = "agroconnect_changes"

const notifyTimeout = 5 * time.Second

type changeNotice struct {
	Origin string   `json:"origin"`
	Topics []string `json:"topics"`
}

// ChangeRelay is a feed Broker whose publications also reach every other
// process attached to the same database.
type ChangeRelay struct {
	*feed.Broker
	pool   *pgxpool.Pool
	origin string
	logger *zap.Logger
}

func NewChangeRelay(pool *pgxpool.Pool, broker *feed.Broker, logger *zap.Logger) *ChangeRelay {
	return &ChangeRelay{
		Broker: broker,
		pool:   pool,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Publish wakes local subscriptions and forwards the topics through
// pg_notify. A failed notify only delays remote subscribers until their next
// signal, so it is logged rather than returned.
func (r *ChangeRelay) Publish(topics ...string) {
	r.Broker.Publish(topics...)

	payload, err := json.Marshal(changeNotice{Origin: r.origin, Topics: topics})
	if err != nil {
		r.logger.Error("encoding change notice", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		r.logger.Warn("pg_notify failed", zap.Strings("topics", topics), zap.Error(err))
	}
}

// Listen holds one pool connection in LISTEN mode and republishes notices
// from other processes until ctx is done.
func (r *ChangeRelay) Listen(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	r.logger.Info("listening for change notices", zap.String("channel", NotifyChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var notice changeNotice
		if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil {
			r.logger.Warn("dropping malformed change notice", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		if notice.Origin == r.origin {
			continue
		}
		r.Broker.Publish(notice.Topics...)
	}
}
