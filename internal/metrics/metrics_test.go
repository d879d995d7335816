package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type call struct {
	Kind   string
	Name   string
	Value  float64
	Labels Labels
}

type recorder struct {
	mu      sync.Mutex
	calls   []call
	flushed int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

// These tests swap the process backend and so do not run in parallel.

func TestRecordStepAndRows(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("assemble", Status(nil), 1500*time.Millisecond)
	AddRows("sampled", 3)
	AddRows("sampled", 0)

	want := []call{
		{"counter", StepTotal, 1, Labels{"step": "assemble", "status": "ok"}},
		{"histogram", StepDurationSeconds, 1.5, Labels{"step": "assemble", "status": "ok"}},
		{"counter", RowsTotal, 3, Labels{"kind": "sampled"}},
	}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}

	if err := Flush(); err != nil || r.flushed != 1 {
		t.Fatalf("Flush err=%v flushed=%d", err, r.flushed)
	}
}

func TestNopBackendByDefault(t *testing.T) {
	SetBackend(nil)
	RecordStep("x", Status(errors.New("boom")), time.Second)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}
	if Status(errors.New("x")) != StatusError {
		t.Fatalf("Status(err) != error")
	}
}
