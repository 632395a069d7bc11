package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/clicks"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/metrics"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortlink"
)

// testApp holds the application components for e2e testing
type testApp struct {
	routes   http.Handler
	dbPool   *pgxpool.Pool
	queries  *db.Queries
	queue    *clicks.Queue
	resolver *shortlink.Resolver
	connStr  string
	cleanup  func()
}

// setupTestApp creates a test application with a real database
func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	logger := setupTestLogger()

	// Run migrations
	if err := runMigrations(connStr, logger); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Connect to database
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	// Verify connection
	if err := dbPool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	// Setup application components
	queries := db.New(dbPool)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	resolver := shortlink.NewResolver(
		shortlink.NewRepository(queries),
		shortlink.ResolverConfig{Logger: logger, Metrics: m},
		cache.WithMaxEntries(100),
	)
	// flushed by hand in tests
	queue := clicks.NewQueue(clicks.NewRepository(queries), clicks.QueueConfig{
		FlushInterval: time.Hour,
		Logger:        logger,
		Metrics:       m,
	})

	svc := shortlink.NewService(shortlink.ServiceConfig{
		Resolver: resolver,
		Clicks:   queue,
		Counter:  clicks.NewCounter(queries),
		Logger:   logger,
		Metrics:  m,
	})
	handler := shortlink.NewHandler(shortlink.HandlerConfig{Service: svc, Logger: logger})

	// Create test config
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:            "8080",
			Host:            "localhost",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		App: config.AppConfig{
			Environment: "test",
			LogLevel:    "error",
		},
		Observability: config.ObservabilityConfig{
			MetricsEnabled: true,
			ServiceName:    "shortlink-test",
			ServiceVersion: "test",
		},
	}

	// Create server
	srv := server.New(cfg, logger, handler, metrics.Handler(reg))

	// Cleanup function
	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			t.Errorf("failed to stop queue: %v", err)
		}
		resolver.Close()
		dbPool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}

	return &testApp{
		routes:   srv.Routes(),
		dbPool:   dbPool,
		queries:  queries,
		queue:    queue,
		resolver: resolver,
		connStr:  connStr,
		cleanup:  cleanup,
	}
}

// seedLink inserts a link through the generated queries.
func (a *testApp) seedLink(t *testing.T, slug, target string, active bool, password, expiration string) db.Link {
	t.Helper()

	link, err := a.queries.CreateLink(context.Background(), db.CreateLinkParams{
		ID:         uuid.New(),
		Slug:       slug,
		Target:     target,
		Active:     active,
		Password:   password,
		Expiration: expiration,
	})
	if err != nil {
		t.Fatalf("failed to seed link %q: %v", slug, err)
	}
	return link
}

// seedStaleLink inserts a link whose window started age ago. Only updates fire
// the updated_at trigger, so an explicit value on insert sticks.
func (a *testApp) seedStaleLink(t *testing.T, slug, target, expiration string, age time.Duration) {
	t.Helper()

	_, err := a.dbPool.Exec(context.Background(),
		`INSERT INTO links (id, slug, target, expiration, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), slug, target, expiration, time.Now().Add(-age),
	)
	if err != nil {
		t.Fatalf("failed to seed stale link %q: %v", slug, err)
	}
}

func (a *testApp) get(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	a.routes.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	rr := app.get("/x/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestRedirect_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("abc123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	app.seedLink(t, "docs", "https://example.com/docs", true, "", "-1")
	app.seedLink(t, "off", "https://example.com/off", false, "", "-1")
	app.seedLink(t, "secret", "https://example.com/secret", true, string(hash), "-1")
	app.seedLink(t, "plain", "https://example.com/plain", true, "letmein", "-1")
	app.seedLink(t, "fresh", "https://example.com/fresh", true, "", "60")
	app.seedStaleLink(t, "old", "https://example.com/old", "60", 2*time.Minute)

	tests := []struct {
		name         string
		path         string
		header       http.Header
		wantStatus   int
		wantLocation string
		wantError    string
	}{
		{"active link redirects", "/docs", nil, http.StatusFound, "https://example.com/docs", ""},
		{"unknown slug", "/nope", nil, http.StatusNotFound, "", "Missing"},
		{"disabled link", "/off", nil, http.StatusForbidden, "", "Disabled"},
		{"password required", "/secret", nil, http.StatusUnauthorized, "", "PasswordRequired"},
		{"wrong password", "/secret?password=wrong", nil, http.StatusForbidden, "", "IncorrectPassword"},
		{"hashed password in query", "/secret?password=abc123", nil, http.StatusFound, "https://example.com/secret", ""},
		{"plain password in header", "/plain", http.Header{shortlink.PasswordHeader: {"letmein"}}, http.StatusFound, "https://example.com/plain", ""},
		{"within expiration window", "/fresh", nil, http.StatusFound, "https://example.com/fresh", ""},
		{"past expiration window", "/old", nil, http.StatusGone, "", "Expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.get(tt.path, tt.header)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if tt.wantLocation != "" {
				if loc := rr.Header().Get("Location"); loc != tt.wantLocation {
					t.Errorf("expected Location %q, got %q", tt.wantLocation, loc)
				}
				return
			}

			var body struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestResolveAPI_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	app.seedLink(t, "docs", "https://example.com/docs", true, "", "-1")
	app.seedLink(t, "locked", "https://example.com/locked", true, "abc123", "-1")

	tests := []struct {
		name string
		body string
		want shortlink.Result
	}{
		{"redirect", `{"slug":"docs"}`, shortlink.Result{Kind: shortlink.KindRedirect, Target: "https://example.com/docs"}},
		{"missing", `{"slug":"nope"}`, shortlink.Result{Kind: shortlink.KindCode, Value: shortlink.CodeMissing}},
		{"password required", `{"slug":"locked"}`, shortlink.Result{Kind: shortlink.KindCode, Value: shortlink.CodePasswordRequired}},
		{"password accepted", `{"slug":"locked","password":"abc123"}`, shortlink.Result{Kind: shortlink.KindRedirect, Target: "https://example.com/locked"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/resolve", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			app.routes.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var got shortlink.Result
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestClickAggregation_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	link := app.seedLink(t, "docs", "https://example.com/docs", true, "", "-1")
	ctx := context.Background()

	// httptest requests share RemoteAddr 192.0.2.1
	for i := range 5 {
		header := http.Header{"User-Agent": {"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"}}
		if i == 4 {
			header.Set("Referer", "https://news.example.org/")
		}
		if rr := app.get("/docs", header); rr.Code != http.StatusFound {
			t.Fatalf("visit %d: expected status 302, got %d", i, rr.Code)
		}
	}

	if got := app.queue.Pending(); got != 5 {
		t.Fatalf("expected 5 pending clicks, got %d", got)
	}

	stats, err := app.queue.Flush(ctx)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if stats.Aggregates != 1 || stats.Stored != 1 {
		t.Errorf("expected one stored aggregate, got %+v", stats)
	}

	row, err := app.queries.GetLinkClicks(ctx, db.GetLinkClicksParams{LinkID: link.ID, SourceIp: "192.0.2.1"})
	if err != nil {
		t.Fatalf("failed to read clicks: %v", err)
	}
	if row.Clicks != 5 {
		t.Errorf("expected 5 clicks, got %d", row.Clicks)
	}
	if row.Referer != "https://news.example.org/" {
		t.Errorf("expected last referer to win, got %q", row.Referer)
	}
	if row.Device != "Desktop" {
		t.Errorf("expected Desktop device, got %q", row.Device)
	}
	if row.Country != clicks.Unknown {
		t.Errorf("expected untrusted geo to stay Unknown, got %q", row.Country)
	}

	// a second window adds to the stored counter
	for range 2 {
		app.get("/docs", nil)
	}
	if _, err := app.queue.Flush(ctx); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}

	total, err := app.queries.SumLinkClicks(ctx, link.ID)
	if err != nil {
		t.Fatalf("failed to sum clicks: %v", err)
	}
	if total != 7 {
		t.Errorf("expected 7 total clicks, got %d", total)
	}

	rr := app.get("/api/links/docs/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got shortlink.LinkStats
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if got.TotalClicks != 7 {
		t.Errorf("expected stats total 7, got %d", got.TotalClicks)
	}
	if app.queue.Pending() != 0 {
		t.Errorf("stats must not queue a click, pending = %d", app.queue.Pending())
	}
}

func TestClicksForMissingLinksAreNotQueued_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	for range 3 {
		app.get("/ghost", nil)
	}
	if got := app.queue.Pending(); got != 0 {
		t.Errorf("expected no pending clicks, got %d", got)
	}
}

func TestCachedAnswerSurvivesLinkChange_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	app.seedLink(t, "docs", "https://example.com/docs", true, "", "-1")
	ctx := context.Background()

	if rr := app.get("/docs", nil); rr.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rr.Code)
	}

	if _, err := app.dbPool.Exec(ctx, `UPDATE links SET active = FALSE WHERE slug = 'docs'`); err != nil {
		t.Fatalf("failed to disable link: %v", err)
	}

	// still cached as active until the TTL runs out
	if rr := app.get("/docs", nil); rr.Code != http.StatusFound {
		t.Errorf("expected cached redirect, got %d", rr.Code)
	}

	app.resolver.Invalidate("docs")
	if rr := app.get("/docs", nil); rr.Code != http.StatusForbidden {
		t.Errorf("expected Disabled after invalidation, got %d", rr.Code)
	}
}

func TestMigrations_DownAndUp_E2E(t *testing.T) {
	app := setupTestApp(t)
	defer app.cleanup()

	m, err := migrations.New(app.connStr, setupTestLogger())
	if err != nil {
		t.Fatalf("failed to open migrator: %v", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Down(); err != nil {
		t.Fatalf("down failed: %v", err)
	}
	if _, _, err := m.Version(); err == nil {
		t.Error("expected no version after rolling back the only migration")
	}

	if err := m.Up(); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	v, dirty, err := m.Version()
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if v != 1 || dirty {
		t.Errorf("expected clean version 1, got %d dirty=%t", v, dirty)
	}

	// running again is a no-op
	if err := m.Up(); err != nil {
		t.Errorf("repeated up failed: %v", err)
	}
}

// Helper functions

func runMigrations(connStr string, logger *slog.Logger) error {
	m, err := migrations.New(connStr, logger)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return m.Up()
}

func setupTestLogger() *slog.Logger {
	// Create a no-op logger for tests
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	})
	return slog.New(handler)
}
