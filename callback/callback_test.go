package callback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/siga-labs/txq/job"
)

func TestNotify_SignedDelivery(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
		gotIdem string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Signature")
		gotIdem = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	j := job.New(job.OpCreate, job.EntityInscripcion, json.RawMessage(`{"registro":"219045678"}`),
		job.WithCallback(srv.URL, "s3cr3t"),
		job.WithIdempotencyKey("idem-1"),
	)
	j.Attempt = 2

	delivered, err := NewSender().Notify(context.Background(), j, StatusOK, "")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !delivered {
		t.Fatal("expected delivered")
	}

	var n Notification
	if err := json.Unmarshal(gotBody, &n); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if n.TransactionID != j.ID.String() || n.Status != StatusOK || n.Attempt != 2 {
		t.Fatalf("notification fields: %+v", n)
	}
	if n.Entity != job.EntityInscripcion || n.Operation != job.OpCreate {
		t.Fatalf("entity/op: %+v", n)
	}

	if gotIdem != "idem-1" {
		t.Fatalf("Idempotency-Key = %q", gotIdem)
	}
	if !Verify(gotBody, "s3cr3t", gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if Verify(gotBody, "wrong", gotSig) {
		t.Fatal("signature verified under the wrong secret")
	}
}

func TestNotify_NoURLIsDelivered(t *testing.T) {
	j := job.New(job.OpCreate, job.EntityAula, nil)
	delivered, err := NewSender().Notify(context.Background(), j, StatusOK, "")
	if err != nil || !delivered {
		t.Fatalf("delivered=%v err=%v, want true/nil without a URL", delivered, err)
	}
}

func TestNotify_NoSecretOmitsSignature(t *testing.T) {
	var sawSig bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSig = r.Header.Get("X-Signature") != ""
	}))
	defer srv.Close()

	j := job.New(job.OpCreate, job.EntityAula, nil, job.WithCallback(srv.URL, ""))
	if _, err := NewSender().Notify(context.Background(), j, StatusOK, ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sawSig {
		t.Fatal("unsigned jobs must not carry X-Signature")
	}
}

func TestNotify_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	j := job.New(job.OpCreate, job.EntityAula, nil, job.WithCallback(srv.URL, "s"))
	delivered, err := NewSender().Notify(context.Background(), j, StatusError, "boom")
	if delivered || err == nil {
		t.Fatalf("delivered=%v err=%v, want false/error on 500", delivered, err)
	}
}

func TestNotify_UnreachableIsFailure(t *testing.T) {
	j := job.New(job.OpCreate, job.EntityAula, nil,
		job.WithCallback("http://127.0.0.1:1/unreachable", "s"))
	delivered, err := NewSender().Notify(context.Background(), j, StatusOK, "")
	if delivered || err == nil {
		t.Fatalf("delivered=%v err=%v, want false/error", delivered, err)
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(job.Success()) != StatusOK {
		t.Error("success should map to OK")
	}
	if StatusFor(job.NotFoundSkip("x")) != StatusSkip {
		t.Error("skip should map to SKIP")
	}
	if StatusFor(job.RetryableFailure(nil)) != StatusError {
		t.Error("retry should map to ERROR")
	}
}
