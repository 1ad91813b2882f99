package job

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	j := New(OpCreate, EntityAula, json.RawMessage(`{"codigo":"A-101"}`))

	if j.ID.IsNil() {
		t.Fatal("expected generated id")
	}
	if j.State != StateQueued {
		t.Fatalf("state = %q, want %q", j.State, StateQueued)
	}
	if j.Priority != 1 {
		t.Fatalf("priority = %d, want 1 (normal)", j.Priority)
	}
	if j.Attempt != 0 {
		t.Fatalf("attempt = %d, want 0", j.Attempt)
	}
	if j.Deferred(time.Now()) {
		t.Fatal("fresh job should not be deferred")
	}
}

func TestClampPriority(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{99, 2},
	}
	for _, tt := range tests {
		if got := ClampPriority(tt.in); got != tt.want {
			t.Errorf("ClampPriority(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWithPriority_Clamps(t *testing.T) {
	j := New(OpDelete, EntityMateria, nil, WithPriority(7))
	if j.Priority != MaxPriority {
		t.Fatalf("priority = %d, want %d", j.Priority, MaxPriority)
	}
}

func TestEffectiveMaxRetries(t *testing.T) {
	j := New(OpUpdate, EntityDocente, nil)
	if got := j.EffectiveMaxRetries(5); got != 5 {
		t.Fatalf("unset override: got %d, want queue default 5", got)
	}

	j.MaxRetries = 2
	if got := j.EffectiveMaxRetries(5); got != 2 {
		t.Fatalf("override: got %d, want 2", got)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	orig := New(OpCreate, EntityInscripcion, json.RawMessage(`{"registro":"219045678"}`),
		WithPriority(0),
		WithCallback("https://example.edu/hook", "s3cr3t"),
		WithIdempotencyKey("idem-1"),
	)

	raw, err := orig.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if back.ID.String() != orig.ID.String() {
		t.Errorf("id = %q, want %q", back.ID, orig.ID)
	}
	if back.Entity != orig.Entity || back.Operation != orig.Operation {
		t.Errorf("entity/op = %s/%s, want %s/%s", back.Entity, back.Operation, orig.Entity, orig.Operation)
	}
	if back.CallbackSecret != "s3cr3t" || back.IdempotencyKey != "idem-1" {
		t.Error("callback fields should survive the round trip")
	}
}

func TestDecode_Corrupt(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error for corrupt payload")
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateSkipped, StateError} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []State{StateQueued, StateProcessing} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestResult_Variants(t *testing.T) {
	if r := Success(); r.IsSkip() || r.IsRetry() || r.ErrorMessage() != "" {
		t.Fatal("Success should be neither skip nor retry")
	}

	r := NotFoundSkip("Aula A-101 no existe")
	if !r.IsSkip() || r.IsRetry() {
		t.Fatal("NotFoundSkip should be a skip")
	}
	if r.ErrorMessage() != "Aula A-101 no existe" {
		t.Fatalf("reason = %q", r.ErrorMessage())
	}

	if r := InvalidSkip("payload vacío"); !r.IsSkip() || r.Outcome != OutcomeSkipInvalid {
		t.Fatal("InvalidSkip should be a skip with the invalid outcome")
	}

	cause := errors.New("deadlock detected")
	rr := RetryableFailure(cause)
	if !rr.IsRetry() || rr.IsSkip() {
		t.Fatal("RetryableFailure should be retry only")
	}
	if rr.ErrorMessage() != "deadlock detected" {
		t.Fatalf("error message = %q", rr.ErrorMessage())
	}
}
