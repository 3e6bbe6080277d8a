// Command codeguard-api is the CodeGuard Pro process entrypoint: it loads
// configuration, wires every component, and serves the HTTP surface
// spec.md §6.2 defines. Grounded on the teacher's main.go (signal-driven
// graceful shutdown around a single http.Server).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeguardpro/internal/api"
	"codeguardpro/internal/astengine"
	"codeguardpro/internal/cloner"
	"codeguardpro/internal/config"
	"codeguardpro/internal/fixagent"
	"codeguardpro/internal/forge"
	"codeguardpro/internal/githubapp"
	"codeguardpro/internal/grammar"
	"codeguardpro/internal/repoanalyzer"
	"codeguardpro/internal/rules"
	"codeguardpro/internal/sandbox"
	"codeguardpro/internal/store"
	"codeguardpro/internal/testrunner"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	app, err := githubapp.New(cfg.GitHubAppID, cfg.GitHubAppSlug, cfg.GitHubWebhookSecret, cfg.GitHubPrivateKeyPEM, cfg.BaseURL)
	if err != nil {
		logger.Warn("github app unconfigured, falling back to GITHUB_TOKEN", "error", err)
	}
	cred, err := githubapp.NewCredentialBroker(app, cfg.GitHubToken)
	if err != nil {
		logger.Error("credential broker failed", "error", err)
		os.Exit(1)
	}
	broker := forge.NewBroker(cred)

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	grammars := grammar.NewRegistry()
	catalog, err := rules.Load()
	if err != nil {
		logger.Error("rule catalog load failed", "error", err)
		os.Exit(1)
	}
	if failed := catalog.Validate(func(lang grammar.Language, pattern string) error {
		q, err := grammars.NewQuery(pattern, lang)
		if err != nil {
			return err
		}
		q.Close()
		return nil
	}); len(failed) > 0 {
		for id, err := range failed {
			logger.Warn("rule query failed to compile, deactivating", "rule", id, "error", err)
		}
	}

	engine := astengine.New(grammars, catalog)
	analyzer := repoanalyzer.New(engine)

	box, err := sandbox.New("")
	if err != nil {
		logger.Warn("sandbox unavailable, tests will run directly on the host", "error", err)
		box = nil
	}
	defer box.Close()
	tests := testrunner.New(box, logger)

	fixes := fixagent.New(cfg.LLMAPIKey, cfg.LLMModel)

	srv := api.New(api.Deps{
		Config:   cfg,
		App:      app,
		Cred:     cred,
		Broker:   broker,
		Store:    st,
		Analyzer: analyzer,
		Tests:    tests,
		Cloner:   cloner.New(),
		Fixes:    fixes,
		Logger:   logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
