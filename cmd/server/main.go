package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vedran77/agroconnect/internal/auth"
	"github.com/vedran77/agroconnect/internal/config"
	"github.com/vedran77/agroconnect/internal/database"
	"github.com/vedran77/agroconnect/internal/feed"
	"github.com/vedran77/agroconnect/internal/repository"
	"github.com/vedran77/agroconnect/internal/repository/memory"
	postgresrepo "github.com/vedran77/agroconnect/internal/repository/postgres"
	sqliterepo "github.com/vedran77/agroconnect/internal/repository/sqlite"
	"github.com/vedran77/agroconnect/internal/service"
	"github.com/vedran77/agroconnect/internal/transport/http/handlers"
	"github.com/vedran77/agroconnect/internal/transport/http/middleware"
	"github.com/vedran77/agroconnect/internal/transport/ws"
	"github.com/vedran77/agroconnect/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// storage is the wired persistence layer for the configured driver.
type storage struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	feed          service.Feed
	// background runs alongside the server until ctx is done. May be nil.
	background func(ctx context.Context) error
	close      func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := feed.NewBroker()
	defer broker.Close()

	store, err := openStorage(ctx, cfg, broker, log)
	if err != nil {
		return err
	}
	defer store.close()

	// Services
	conversationService := service.NewConversationService(store.conversations, store.feed, log)
	conversationService.SetQueryTimeout(cfg.QueryTimeout)
	messageService := service.NewMessageService(store.messages, store.conversations, store.feed, log)
	messageService.SetWindow(cfg.MessageWindow)
	messageService.SetQueryTimeout(cfg.QueryTimeout)

	// Handlers
	verifier := auth.NewVerifier(cfg.JWTSecret)
	conversationHandler := handlers.NewConversationHandler(conversationService, log)
	messageHandler := handlers.NewMessageHandler(conversationService, messageService, log)
	hub := ws.NewHub(conversationService, messageService, cfg.MessageWindow, log)

	// Routes
	mux := http.NewServeMux()
	handlers.Register(mux, middleware.Auth(verifier), conversationHandler, messageHandler)
	mux.Handle("GET /ws", ws.ServeWS(hub, verifier))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.RequestLogger(log)(middleware.CORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	if store.background != nil {
		g.Go(func() error {
			return store.background(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg *config.Config, broker *feed.Broker, log *zap.Logger) (*storage, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("connected to database", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

		relay := postgresrepo.NewChangeRelay(pool, broker, log)
		return &storage{
			conversations: postgresrepo.NewConversationRepo(pool),
			messages:      postgresrepo.NewMessageRepo(pool),
			feed:          relay,
			background:    relay.Listen,
			close:         pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqliterepo.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("opened sqlite database", zap.String("path", cfg.SQLitePath))
		return &storage{
			conversations: sqliterepo.NewConversationRepo(db),
			messages:      sqliterepo.NewMessageRepo(db),
			feed:          broker,
			close:         func() { db.Close() },
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		store := memory.New()
		return &storage{
			conversations: store,
			messages:      store,
			feed:          broker,
			close:         func() {},
		}, nil
	}

	return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
}
