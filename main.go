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

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "espiar-bot",
		Short:         "WhatsApp bot that re-sends quoted media for premium users",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(cmd *cobra.Command, _ []string) error { return run(cmd.Context()) },
	}
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to WhatsApp and serve the admin dashboard",
		RunE:  func(cmd *cobra.Command, _ []string) error { return run(cmd.Context()) },
	})
	root.AddCommand(newPremiumCmd())
	return root
}

func run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := waLog.Stdout("Main", cfg.LogLevel, true)
	log.Infof("Starting %s", cfg.BotTag)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openPremium(ctx, cfg, log.Sub("Premium"))
	if err != nil {
		return err
	}
	defer closeStore()

	dialect, address := cfg.Store()
	container, err := sqlstore.New(ctx, dialect, address, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}

	bot := NewBot(cfg, container, store, log)
	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("start bot: %w", err)
	}
	defer bot.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: newRouter(bot, store, cfg.AdminToken)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Web server failed: %v", err)
			stop()
		}
	}()
	log.Infof("Dashboard listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openPremium builds the premium store: MongoDB when configured, otherwise
// the YAML file in memory, with an optional Redis cache in front.
func openPremium(ctx context.Context, cfg *Config, log waLog.Logger) (premium.Store, func(), error) {
	seed, err := premium.LoadFile(cfg.PremiumFile)
	if err != nil {
		return nil, nil, err
	}

	var (
		store   premium.Store = seed
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mc, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongodb: %w", err)
		}
		if err := mc.Ping(connectCtx, nil); err != nil {
			_ = mc.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ping mongodb: %w", err)
		}
		closers = append(closers, func() { _ = mc.Disconnect(context.Background()) })

		ms := premium.NewMongo(mc.Database(cfg.MongoDB))
		entries, _ := seed.List(ctx)
		if n, err := ms.Import(ctx, entries); err != nil {
			log.Warnf("Importing %s into MongoDB failed after %d users: %v", cfg.PremiumFile, n, err)
		} else if n > 0 {
			log.Infof("Seeded MongoDB with %d premium users from %s", n, cfg.PremiumFile)
		}
		store = ms
	} else {
		log.Warnf("MONGO_URI not set, premium users from %s are kept in memory only", cfg.PremiumFile)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		closers = append(closers, func() { _ = rdb.Close() })
		store = premium.NewCached(store, rdb, cfg.PremiumCacheTTL, log)
	}
	return store, closeAll, nil
}
