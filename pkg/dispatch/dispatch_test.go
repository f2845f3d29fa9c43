package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type stubDispatcher struct{}

func (stubDispatcher) Register(context.Context, string, map[string]string, map[string]string, ResourceLimits) (JobHandle, error) {
	return JobHandle{Provider: "stub"}, nil
}

func (stubDispatcher) Submit(context.Context, JobHandle) (SubmitResult, error) {
	return SubmitResult{SubmissionID: "stub-1"}, nil
}

func TestRegistryResolvesRegisteredProvider(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("stub", func() (Dispatcher, error) { return stubDispatcher{}, nil })

	d, err := r.Dispatcher("stub")
	if err != nil {
		t.Fatalf("Dispatcher error: %v", err)
	}
	if _, ok := d.(stubDispatcher); !ok {
		t.Fatalf("resolved %T, want stubDispatcher", d)
	}
}

func TestRegistryUnknownProviderFallsBackToBase(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	d, err := r.Dispatcher("oracle")
	if err != nil {
		t.Fatalf("Dispatcher error: %v", err)
	}

	ctx := context.Background()
	if _, err := d.Register(ctx, "job", nil, nil, ResourceLimits{}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Register err = %v, want ErrNotImplemented", err)
	}
	if _, err := d.Submit(ctx, JobHandle{}); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Submit err = %v, want ErrNotImplemented", err)
	}
}

func TestRegistryFactoryFailurePropagates(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register("broken", func() (Dispatcher, error) { return nil, errors.New("no credentials") })

	if _, err := r.Dispatcher("broken"); err == nil {
		t.Fatal("expected factory error to propagate")
	}
}

func TestResourceConversions(t *testing.T) {
	cpuTests := []struct{ in, want string }{
		{"1000m", "1"},
		{"2000m", "2"},
		{"500m", "1"},
		{"4", "4"},
		{"garbage", "1"},
	}
	for _, tt := range cpuTests {
		if got := vcpusFromCPU(tt.in); got != tt.want {
			t.Errorf("vcpusFromCPU(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	memTests := []struct{ in, want string }{
		{"512Mi", "512"},
		{"2Gi", "2048"},
		{"1024", "1024"},
		{"garbage", "512"},
	}
	for _, tt := range memTests {
		if got := megabytesFromMemory(tt.in); got != tt.want {
			t.Errorf("megabytesFromMemory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
