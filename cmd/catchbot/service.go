package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/cwygoda/catchbot/internal/adapter/http"
	"github.com/cwygoda/catchbot/internal/adapter/redis"
	"github.com/cwygoda/catchbot/internal/adapter/sqlite"
	"github.com/cwygoda/catchbot/internal/adapter/telegram"
	"github.com/cwygoda/catchbot/internal/adapter/ytdlp"
	"github.com/cwygoda/catchbot/internal/config"
	"github.com/cwygoda/catchbot/internal/domain"
	"github.com/cwygoda/catchbot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// service is the long-running process: worker, optional HTTP server and
// optional Telegram bot sharing one broker connection and one ledger.
type service struct {
	client *goredis.Client
	ledger *sqlite.Repository
	sub    *redis.Subscriber
	worker *worker.Worker
	srv    *httpAdapter.Server
	bot    *telegram.Bot
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := redis.NewClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

func newService(ctx context.Context, cfg *config.Config, withBot, installYtdlp bool) (*service, error) {
	log.Info().
		Str("redis", cfg.Redis.Addr()).
		Str("channel", cfg.Redis.Channel).
		Str("db", cfg.DBPath).
		Msg("starting catchbot")

	client, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	s := &service{client: client}

	ledger, err := sqlite.New(cfg.DBPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	s.ledger = ledger

	// Nothing is re-queued; jobs cut off by the last shutdown are only marked.
	if n, err := ledger.FailInterrupted(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to mark interrupted jobs")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("marked interrupted jobs as failed")
	}

	if installYtdlp {
		if err := ytdlp.Install(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.sub = redis.NewSubscriber(client, cfg.Redis.Channel)
	pipeline := ytdlp.New(cfg.OutputDir)
	log.Info().Str("output_dir", pipeline.OutputDir()).Msg("media pipeline ready")
	s.worker = worker.New(s.sub, pipeline, ledger)

	dispatcher := domain.NewDispatcher(redis.NewPublisher(client, cfg.Redis.Channel))

	if cfg.Port > 0 {
		s.srv = httpAdapter.NewServer(dispatcher, ledger, fmt.Sprintf(":%d", cfg.Port), cfg.WebhookSecret)
	}

	if withBot {
		bot, err := newBot(cfg, dispatcher)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.bot = bot
	}
	return s, nil
}

func newBot(cfg *config.Config, dispatcher *domain.Dispatcher) (*telegram.Bot, error) {
	names, err := config.LoadAllowList(cfg.AllowList)
	if err != nil {
		return nil, fmt.Errorf("load allow-list: %w", err)
	}
	if len(names) == 0 {
		log.Warn().Str("path", cfg.AllowList).Msg("allow-list is empty, the bot will ignore everyone")
	}

	bot, err := telegram.NewBot(cfg.BotToken)
	if err != nil {
		return nil, err
	}

	workDir := filepath.Join(os.TempDir(), "catchbot")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, err
	}
	bot.SetHandler(telegram.NewHandler(dispatcher, telegram.NewAllowList(names), bot, workDir))
	return bot, nil
}

// Run blocks until ctx is cancelled, then shuts every component down.
func (s *service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(name string, err error) {
		if err == nil {
			return
		}
		log.Error().Err(err).Str("component", name).Msg("component stopped")
		errOnce.Do(func() { runErr = err })
		cancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		fail("worker", s.worker.Run(ctx))
	}()

	if s.srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", s.srv.Addr()).Msg("HTTP server listening")
			fail("http", s.srv.ListenAndServe())
		}()
	}

	if s.bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail("telegram", s.bot.Run(ctx))
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if s.srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	wg.Wait()
	log.Info().Msg("shutdown complete")
	return runErr
}

// Close releases the broker connection and the ledger.
func (s *service) Close() {
	if s.sub != nil {
		s.sub.Close()
	}
	if s.ledger != nil {
		s.ledger.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
}
