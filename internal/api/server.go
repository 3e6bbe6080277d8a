// Package api wires every CodeGuard Pro component into the public HTTP
// surface spec.md §6.2 defines: the webhook intake, the install-url
// helper, and the /heal SSE gateway. Grounded on the teacher's chi router
// (the original internal/api/server.go), generalized from one webhook
// switch statement into the fuller routing table the healing loop needs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v66/github"
	"github.com/google/uuid"

	"codeguardpro/internal/branchmgr"
	"codeguardpro/internal/ciagent"
	"codeguardpro/internal/cloner"
	"codeguardpro/internal/config"
	"codeguardpro/internal/domain"
	"codeguardpro/internal/fixagent"
	"codeguardpro/internal/forge"
	"codeguardpro/internal/githubapp"
	"codeguardpro/internal/orchestrator"
	"codeguardpro/internal/prcreator"
	"codeguardpro/internal/ratelimit"
	"codeguardpro/internal/repoanalyzer"
	"codeguardpro/internal/repoconfig"
	"codeguardpro/internal/ssegateway"
	"codeguardpro/internal/store"
	"codeguardpro/internal/testrunner"
	"codeguardpro/internal/webhookintake"
)

// Deps bundles every component the server wires into routes. All fields
// are required except App (nil disables /webhook and /api/install/url, and
// /heal then uses the broker's fallback token), Tests (nil skips the test
// run) and Logger (nil uses slog.Default()).
type Deps struct {
	Config   config.Config
	App      *githubapp.App
	Cred     *githubapp.CredentialBroker
	Broker   *forge.Broker
	Store    *store.Store
	Analyzer *repoanalyzer.Analyzer
	Tests    *testrunner.Runner
	Cloner   *cloner.Cloner
	Fixes    *fixagent.Agent
	Logger   *slog.Logger
}

// Server hosts the chi router and the per-session healing runner.
type Server struct {
	deps    Deps
	intake  *webhookintake.Intake
	gateway *ssegateway.Gateway
	results *ssegateway.ResultStore
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, logger: deps.Logger}
	s.intake = webhookintake.New(deps.Broker, deps.Store, deps.Logger)
	s.results = ssegateway.NewResultStore()
	s.gateway = ssegateway.New(s.runHeal, s.results, deps.Logger)
	s.limiter = ratelimit.New(60, time.Minute)
	return s
}

// Router builds the chi handler spec.md §6.2 names.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/install/url", func(w http.ResponseWriter, _ *http.Request) {
			if s.deps.App == nil {
				http.Error(w, "no GitHub App configured", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"url": s.deps.App.InstallURL()})
		})
	})

	r.Post("/webhook", s.handleWebhook)

	r.Post("/heal", s.gateway.HandlePost)
	r.Get("/heal", s.gateway.HandleGet)
	r.Post("/heal/results", s.gateway.HandleResultsPost)
	r.Get("/heal/results", s.gateway.HandleResultsGet)

	return r
}

// rateLimit enforces spec.md §5's per-IP sliding window on every request.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		ok, retryAfter := s.limiter.Allow(key)
		if !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.App == nil {
		http.Error(w, "no GitHub App configured for webhook verification", http.StatusNotImplemented)
		return
	}
	body, err := s.deps.App.VerifyWebhook(r, s.deps.Config.IsDevelopment())
	if err != nil {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	eventType := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	s.logger.Info("webhook received", "event", eventType, "delivery", delivery)

	event, err := github.ParseWebHook(eventType, body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if err := s.intake.Handle(r.Context(), event); err != nil {
		s.logger.Error("webhook handling failed", "event", eventType, "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}

// runHeal implements ssegateway.Runner: it resolves the target repo's
// installation, clones it, runs RepoAnalyzer/TestRunner to seed the issue
// set, and drives the Orchestrator, streaming progress as it goes. Per
// spec.md §4.14/§4.16.
func (s *Server) runHeal(req ssegateway.Request) (<-chan ssegateway.Event, error) {
	owner, name, err := parseRepoURL(req.RepoURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Config.HealTotalTimeout)
	var instID int64
	if s.deps.App != nil {
		appClient, err := s.deps.Cred.AppClient()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolve app credentials: %w", err)
		}
		instID, err = s.deps.Broker.ListInstallation(ctx, appClient, owner, name)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolve installation for %s/%s: %w", owner, name, err)
		}
	}
	client, err := s.deps.Broker.For(ctx, instID, owner, name)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build forge client: %w", err)
	}
	token, err := s.deps.Cred.Token(ctx, instID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mint clone token: %w", err)
	}
	repoInfo, err := client.GetRepo(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load repo metadata: %w", err)
	}

	events := make(chan ssegateway.Event, 16)
	session := &domain.HealSession{
		ID:             uuid.NewString(),
		RepoOwner:      owner,
		RepoName:       name,
		DefaultBranch:  repoInfo.DefaultBranch,
		AIBranch:       branchmgr.BuildBranchName(req.TeamName, req.LeaderName),
		InstallationID: instID,
	}

	go func() {
		defer cancel()
		defer close(events)
		start := time.Now()
		emit(events, "cloning", fmt.Sprintf("cloning %s/%s@%s", owner, name, repoInfo.DefaultBranch))

		checkout, err := s.deps.Cloner.Clone(owner, name, repoInfo.DefaultBranch, token)
		if err != nil {
			s.emitError(events, session, start, fmt.Errorf("clone failed: %w", err))
			return
		}
		defer checkout.Remove()

		cfg := loadRepoConfig(checkout.Path)

		emit(events, "analyzing", "scanning repository for issues")
		issues, err := s.deps.Analyzer.Analyze(checkout.Path, cfg)
		if err != nil {
			s.logger.Warn("runHeal: repo analysis error", "error", err)
		}
		if s.deps.Tests != nil {
			outcome, err := s.deps.Tests.Run(ctx, name, checkout.Path)
			if err != nil {
				s.logger.Warn("runHeal: test run error", "error", err)
			}
			for _, f := range outcome.Failures {
				issues = append(issues, domain.Issue{
					File: f.File, Line: f.Line, Description: f.Message,
					BugType: ciagent.ClassifyFailure(f.Message), Source: domain.SourceTest,
				})
			}
		}
		session.Issues = issues
		emit(events, "branching", fmt.Sprintf("preparing branch %s", session.AIBranch))

		branches := branchmgr.New(client)
		if _, err := branches.CreateBranch(ctx, session.AIBranch, session.DefaultBranch); err != nil {
			s.emitError(events, session, start, fmt.Errorf("create branch failed: %w", err))
			return
		}

		orch := orchestrator.New(orchestrator.Deps{
			Branches: branches,
			Fixes:    s.deps.Fixes,
			CI:       ciagent.New(client),
			PRs:      prcreator.New(client),
			Logger:   s.logger,
			Emit: func(ev domain.ProgressEvent) {
				events <- ssegateway.Event{Stage: ev.Stage, Timestamp: ev.Timestamp, Message: ev.Message}
			},
		})

		emit(events, "healing", fmt.Sprintf("healing %d issue(s)", len(issues)))
		if err := orch.Run(ctx, session); err != nil {
			s.emitError(events, session, start, fmt.Errorf("healing failed: %w", err))
			return
		}

		result := session.ToResult(time.Since(start))
		s.results.Put(session.ID, result)
		events <- ssegateway.Event{Stage: "result", Timestamp: time.Now(), Results: &result}
	}()

	return events, nil
}

func (s *Server) emitError(events chan<- ssegateway.Event, session *domain.HealSession, start time.Time, cause error) {
	s.logger.Error("runHeal: session failed", "session", session.ID, "error", cause)
	result := session.ToResult(time.Since(start))
	s.results.Put(session.ID, result)
	events <- ssegateway.Event{Stage: "error", Timestamp: time.Now(), Message: cause.Error(), Results: &result}
}

func emit(events chan<- ssegateway.Event, stage, message string) {
	events <- ssegateway.Event{Stage: stage, Timestamp: time.Now(), Message: message}
}

func loadRepoConfig(root string) repoconfig.Config {
	raw, err := os.ReadFile(filepath.Join(root, ".codeguard.yaml"))
	if err != nil || len(raw) == 0 {
		return repoconfig.Default()
	}
	cfg, err := repoconfig.Parse(raw)
	if err != nil {
		return repoconfig.Default()
	}
	return cfg
}

// parseRepoURL extracts owner/name from a GitHub repository URL, trimming
// an optional ".git" suffix and trailing slash.
func parseRepoURL(raw string) (owner, name string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("invalid repo_url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo_url must look like https://github.com/<owner>/<repo>")
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
