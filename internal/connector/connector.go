package connector

import (
	"context"
	"time"

	"github.com/crimson-sun/auditor/internal/model"
)

// Connector defines the interface all audit event sources must implement.
type Connector interface {
	// Fetch returns every audit event recorded at or after since as a single
	// payload. It either returns the whole batch or fails; partial results
	// are never returned.
	Fetch(ctx context.Context, cfg ConnectorConfig, since time.Time) (model.Payload, error)
}

// ConnectorConfig holds provider-specific connection settings.
type ConnectorConfig struct {
	Provider string
	APIKey   string
	Endpoint string
	Timeout  time.Duration // 0 = provider default
	Extra    map[string]string
}
