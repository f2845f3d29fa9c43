package sizing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketops/delivery-engine/pkg/types"
)

func countServer(t *testing.T, sizes map[string]int64, slow map[string]time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "audiences" || parts[2] != "count" {
			http.NotFound(w, r)
			return
		}
		id := parts[1]

		if d, ok := slow[id]; ok {
			time.Sleep(d)
		}
		size, ok := sizes[id]
		if !ok {
			http.Error(w, "unknown audience", http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"count": %d}`, size)
	}))
}

func audiences(ids ...string) []types.Audience {
	out := make([]types.Audience, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Audience{ID: id})
	}
	return out
}

func TestEstimateSizes(t *testing.T) {
	srv := countServer(t, map[string]int64{"a": 100, "b": 250, "c": 42}, nil)
	defer srv.Close()

	e := NewEstimator(srv.URL, time.Second, zerolog.Nop())
	sizes := e.EstimateSizes(context.Background(), "token", audiences("a", "b", "c"), -1)

	want := map[string]int64{"a": 100, "b": 250, "c": 42}
	if len(sizes) != len(want) {
		t.Fatalf("sizes = %v, want %v", sizes, want)
	}
	for id, n := range want {
		if sizes[id] != n {
			t.Errorf("sizes[%s] = %d, want %d", id, sizes[id], n)
		}
	}
}

func TestEstimateSizesTimeoutDefaultsOneEntry(t *testing.T) {
	srv := countServer(t,
		map[string]int64{"a": 100, "b": 250, "c": 42},
		map[string]time.Duration{"b": 500 * time.Millisecond})
	defer srv.Close()

	e := NewEstimator(srv.URL, 50*time.Millisecond, zerolog.Nop())
	sizes := e.EstimateSizes(context.Background(), "token", audiences("a", "b", "c"), 7)

	if len(sizes) != 3 {
		t.Fatalf("sizes has %d entries, want 3: %v", len(sizes), sizes)
	}
	if sizes["b"] != 7 {
		t.Errorf("timed-out audience size = %d, want fallback 7", sizes["b"])
	}
	if sizes["a"] != 100 || sizes["c"] != 42 {
		t.Errorf("healthy audiences affected by sibling timeout: %v", sizes)
	}
}

func TestEstimateSizesNonSuccessDefaults(t *testing.T) {
	srv := countServer(t, map[string]int64{"a": 100}, nil)
	defer srv.Close()

	e := NewEstimator(srv.URL, time.Second, zerolog.Nop())
	sizes := e.EstimateSizes(context.Background(), "token", audiences("a", "missing"), 0)

	if sizes["a"] != 100 {
		t.Errorf("sizes[a] = %d, want 100", sizes["a"])
	}
	if sizes["missing"] != 0 {
		t.Errorf("sizes[missing] = %d, want fallback 0", sizes["missing"])
	}
}

func TestEstimateSizesSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"count": 1}`)
	}))
	defer srv.Close()

	e := NewEstimator(srv.URL, time.Second, zerolog.Nop())
	e.EstimateSizes(context.Background(), "tok-123", audiences("a"), 0)

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

func TestEstimateSizesEmptyInput(t *testing.T) {
	e := NewEstimator("http://unused.invalid", time.Second, zerolog.Nop())
	sizes := e.EstimateSizes(context.Background(), "token", nil, 5)
	if len(sizes) != 0 {
		t.Fatalf("sizes = %v, want empty map", sizes)
	}
}
