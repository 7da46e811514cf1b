package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/soukhq/souk/config"
	"github.com/soukhq/souk/internal/agent"
	"github.com/soukhq/souk/internal/capability"
	"github.com/soukhq/souk/internal/llm"
	"github.com/soukhq/souk/internal/memory"
	"github.com/soukhq/souk/internal/negotiation"
	"github.com/soukhq/souk/internal/retrieval"
	"github.com/soukhq/souk/internal/store"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		e.Use(requestMetrics)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()
	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	var locker negotiation.Locker = negotiation.NoopLocker{}
	if cfg.Storage.Redis.Host != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		locker = &negotiation.RedisLocker{Rdb: rdb}
	}

	retriever := retrieval.New(provider, st, cfg.LLM.Routing.Embedding, cfg.Retrieval,
		log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags))

	judge := negotiation.NewLLMJudge(provider, cfg.LLM.Routing.JudgeModel())
	engine := negotiation.NewEngine(st, judge, locker, cfg.Negotiation,
		log.New(log.Writer(), "[NEGOTIATE] ", log.LstdFlags))

	registry := capability.NewDefaultRegistry(st, retriever, engine)
	history := memory.NewLoader(st, cfg.Agent.HistoryWindow,
		log.New(log.Writer(), "[MEMORY] ", log.LstdFlags))
	chatAgent := agent.New(provider, registry, history, cfg.LLM.Routing.ChatModel(),
		cfg.Agent.MaxIterations, log.New(log.Writer(), "[CHAT] ", log.LstdFlags))

	secret := []byte(cfg.Server.JWTSecret)
	if len(secret) == 0 {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	api := e.Group("/api")
	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	ch := &ChatHandler{Store: st, Agent: chatAgent}
	ch.Register(api.Group("/chat"), secret)

	nh := &NegotiationHandler{Engine: engine}
	nh.Register(api.Group("/negotiate"), secret)

	dh := &DiscountHandler{Store: st}
	dh.Register(api.Group("/discounts"), secret)

	return e.Start(cfg.Server.Address)
}
