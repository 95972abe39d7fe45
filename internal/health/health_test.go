package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveReadyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func ok(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "gateway", Check: func(context.Context) error { return ErrNotReady }})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "gateway", Check: ok},
				{Name: "stream", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"gateway": "ok", "stream": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "gateway", Check: func(context.Context) error { return errors.New("websocket closed") }},
				{Name: "stream", Check: ok},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"gateway": "fail: websocket closed", "stream": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "gateway", Check: func(context.Context) error { return ErrNotReady }},
				{Name: "stream", Check: func(context.Context) error { return errors.New("all backends open") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"gateway": "fail: not ready", "stream": "fail: all backends open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := serveReadyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	// Each checker waits for the other; sequential evaluation would hit the
	// deadline instead.
	a, b := make(chan struct{}), make(chan struct{})
	h := New(
		Checker{Name: "a", Check: func(ctx context.Context) error {
			close(a)
			select {
			case <-b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		Checker{Name: "b", Check: func(ctx context.Context) error {
			close(b)
			select {
			case <-a:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if code, body := serveReadyz(t, h, ctx); code != http.StatusOK {
		t.Fatalf("code = %d, body = %+v", code, body)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := serveReadyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestFlag(t *testing.T) {
	t.Parallel()

	var f Flag
	h := New(f.Checker("gateway"))

	code, body := serveReadyz(t, h, context.Background())
	if code != http.StatusServiceUnavailable || body.Checks["gateway"] != "fail: not ready" {
		t.Fatalf("unset flag: code = %d, checks = %v", code, body.Checks)
	}

	f.Set(true)
	if !f.Ready() {
		t.Fatal("Ready() = false after Set(true)")
	}
	if code, body := serveReadyz(t, h, context.Background()); code != http.StatusOK {
		t.Fatalf("set flag: code = %d, checks = %v", code, body.Checks)
	}

	f.Set(false)
	if code, _ := serveReadyz(t, h, context.Background()); code != http.StatusServiceUnavailable {
		t.Fatalf("cleared flag: code = %d", code)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "gateway", Check: ok})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}
