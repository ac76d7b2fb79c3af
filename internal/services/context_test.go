package services_test

import (
	"context"
	"testing"

	"proxyencoder/internal/services"
)

func TestWithJobOverlaysScope(t *testing.T) {
	ctx := services.WithJob(context.Background(), services.JobScope{Worker: "render-01-ab12cd34"})
	ctx = services.WithJob(ctx, services.JobScope{JobID: "job-42", BatchID: "batch-1", Clip: "A001.mov"})

	got, ok := services.JobFromContext(ctx)
	if !ok {
		t.Fatal("expected a job scope")
	}
	want := services.JobScope{JobID: "job-42", BatchID: "batch-1", Clip: "A001.mov", Worker: "render-01-ab12cd34"}
	if got != want {
		t.Fatalf("scope = %+v, want %+v", got, want)
	}
}

func TestWithJobBlankScopeKeepsContext(t *testing.T) {
	base := context.Background()
	if ctx := services.WithJob(base, services.JobScope{}); ctx != base {
		t.Fatal("expected the same context for an empty scope")
	}
	if _, ok := services.JobFromContext(base); ok {
		t.Fatal("expected no scope on a bare context")
	}
}
