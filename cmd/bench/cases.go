// README: Bench checks for the quote API; covers environment, quote lifecycle, slot races and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer func() { _ = r.redis.Close() }()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: statusFail, Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: statusFail, Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			return Result{Status: statusPass}
		}},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodGet, "/health", nil)
			return expect(status, latency, err, http.StatusOK)
		}},

		{Name: "Pricing: estimate moving", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodPost, "/api/pricing/estimate", sampleDraft())
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Pricing: unknown service -> 422", Run: func(ctx context.Context, r *Runner) Result {
			draft := sampleDraft()
			draft["service"] = "TELEPORT"
			status, latency, _, err := r.do(ctx, http.MethodPost, "/api/pricing/estimate", draft)
			return expect(status, latency, err, http.StatusUnprocessableEntity)
		}},
		{Name: "Pricing: invalid json -> 400", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodPost, "/api/pricing/estimate", []byte(`{`))
			return expect(status, latency, err, http.StatusBadRequest)
		}},

		{Name: "Quote: create and fetch", Run: func(ctx context.Context, r *Runner) Result {
			q, err := r.createQuote(ctx)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			status, latency, _, err := r.do(ctx, http.MethodGet, "/api/quotes/"+q.ID, nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Quote: unknown id -> 404", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodGet, "/api/quotes/q_missing", nil)
			return expect(status, latency, err, http.StatusNotFound)
		}},
		{Name: "Quote: recompute bumps version", Run: func(ctx context.Context, r *Runner) Result {
			q, err := r.createQuote(ctx)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			var out quoteView
			status, latency, body, err := r.do(ctx, http.MethodPatch, "/api/quotes/"+q.ID, map[string]any{"volumeM3": 30})
			if res := expect(status, latency, err, http.StatusOK); res.Status != statusPass {
				return res
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if out.StatusVersion != q.StatusVersion+1 {
				return Result{Status: statusFail, Note: fmt.Sprintf("version=%d", out.StatusVersion)}
			}
			return Result{Status: statusPass, Latency: latency}
		}},
		{Name: "Quote: confirm before signature -> 409", Run: func(ctx context.Context, r *Runner) Result {
			q, err := r.createQuote(ctx)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			status, latency, _, err := r.do(ctx, http.MethodPost, "/api/quotes/"+q.ID+"/confirm", nil)
			return expect(status, latency, err, http.StatusConflict)
		}},
		{Name: "Quote: cancel is terminal", Run: func(ctx context.Context, r *Runner) Result {
			q, err := r.createQuote(ctx)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			if _, _, _, err := r.do(ctx, http.MethodPost, "/api/quotes/"+q.ID+"/cancel", map[string]any{"reason": "bench"}); err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			status, latency, _, err := r.do(ctx, http.MethodPost, "/api/quotes/"+q.ID+"/request-signature", nil)
			return expect(status, latency, err, http.StatusConflict)
		}},

		{Name: "Availability: slots list", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodGet, "/api/availability/slots?speed=STANDARD&volume_m3=20", nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "Availability: bad date -> 400", Run: func(ctx context.Context, r *Runner) Result {
			status, latency, _, err := r.do(ctx, http.MethodGet, "/api/availability/slots?from=tomorrow", nil)
			return expect(status, latency, err, http.StatusBadRequest)
		}},

		{Name: "Concurrency: schedule same slot", Run: concurrentSchedule},
		{Name: "Perf: estimate throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/pricing/estimate", sampleDraft())
		}},
	}
}

type quoteView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusVersion int    `json:"statusVersion"`
}

type slotsView struct {
	Slots []struct {
		Start     time.Time `json:"start"`
		Remaining int       `json:"remaining"`
	} `json:"slots"`
}

func sampleDraft() map[string]any {
	return map[string]any{
		"service":     "MOVING",
		"speed":       "STANDARD",
		"volumeM3":    20,
		"floors":      2,
		"hasElevator": false,
		"from":        map[string]any{"line": "Torstr. 1", "postalCode": "10119", "city": "Berlin"},
		"to":          map[string]any{"line": "Karl-Marx-Allee 90", "postalCode": "10243", "city": "Berlin"},
		"extras":      map[string]any{},
	}
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, time.Duration, []byte, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, time.Since(start), out, err
}

func (r *Runner) createQuote(ctx context.Context) (quoteView, error) {
	var q quoteView
	status, _, body, err := r.do(ctx, http.MethodPost, "/api/quotes", sampleDraft())
	if err != nil {
		return q, err
	}
	if status != http.StatusCreated {
		return q, fmt.Errorf("create quote: status=%d", status)
	}
	return q, json.Unmarshal(body, &q)
}

// confirmedQuote walks a fresh quote to CONFIRMED.
func (r *Runner) confirmedQuote(ctx context.Context) (quoteView, error) {
	q, err := r.createQuote(ctx)
	if err != nil {
		return q, err
	}
	for _, step := range []string{"request-signature", "confirm"} {
		status, _, _, err := r.do(ctx, http.MethodPost, "/api/quotes/"+q.ID+"/"+step, nil)
		if err != nil {
			return q, err
		}
		if status != http.StatusOK {
			return q, fmt.Errorf("%s: status=%d", step, status)
		}
	}
	return q, nil
}

func expect(status int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

// concurrentSchedule books the first open slot from many confirmed quotes at
// once. No more than the slot's remaining capacity may succeed.
func concurrentSchedule(ctx context.Context, r *Runner) Result {
	status, _, body, err := r.do(ctx, http.MethodGet, "/api/availability/slots?speed=STANDARD&volume_m3=20", nil)
	if err != nil || status != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("slots: status=%d err=%v", status, err)}
	}
	var slots slotsView
	if err := json.Unmarshal(body, &slots); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if len(slots.Slots) == 0 {
		return Result{Status: statusSkip, Note: "no open slots"}
	}
	target := slots.Slots[0]

	quotes := make([]quoteView, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		q, err := r.confirmedQuote(ctx)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		quotes = append(quotes, q)
	}

	var succ, conflict atomic.Int64
	var wg sync.WaitGroup
	for _, q := range quotes {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, _, _, err := r.do(ctx, http.MethodPost, "/api/quotes/"+id+"/schedule", map[string]any{"start": target.Start})
			if err != nil {
				return
			}
			switch status {
			case http.StatusOK:
				succ.Add(1)
			case http.StatusConflict:
				conflict.Add(1)
			}
		}(q.ID)
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d remaining=%d", succ.Load(), conflict.Load(), target.Remaining)
	if succ.Load() > int64(target.Remaining) {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.do(ctx, http.MethodPost, path, payload)
				if err != nil || status >= http.StatusInternalServerError {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	matches := createTableRe.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

// splitSQL drops comment lines and splits on semicolons. The migration has no
// function bodies, so this is enough.
func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
