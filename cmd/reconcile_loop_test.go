package main

import (
	"context"
	"testing"
	"time"

	"github.com/damayan/ledger-service/internal/app"
	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
)

type reconcileLoopRepoStub struct {
	store.Repository

	passes chan struct{}
}

func (s *reconcileLoopRepoStub) ListOrphanedPaymentMetadata(ctx context.Context, limit int) ([]domain.PaymentMetadata, error) {
	select {
	case s.passes <- struct{}{}:
	default:
	}
	return nil, nil
}

func TestRunReconcileLoop_FirstPassRunsAtStartup(t *testing.T) {
	repo := &reconcileLoopRepoStub{passes: make(chan struct{}, 1)}
	service := app.NewService(repo, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runReconcileLoop(ctx, service, nil)

	// Orphans left behind by a crash must be picked up immediately, not an
	// hour after boot.
	select {
	case <-repo.passes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reconcile pass at startup, none ran within 2s")
	}
}
