package orchestrator

import (
	"context"

	"mfsync/internal/endpoint"
	"mfsync/internal/scrapers/moneyforward"
)

// Sink is where collected records go, *endpoint.Client in production.
//
//go:generate mockgen -destination=mocks/mock_sink.go -source=sink.go Sink
type Sink interface {
	GetSyncConfig(ctx context.Context) (endpoint.SyncConfig, error)
	SyncData(ctx context.Context, records []moneyforward.Record) (int, error)
}
