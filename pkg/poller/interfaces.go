// Package poller pkg/poller/interfaces.go

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/ondrej1024/m5-minimed-monitor/pkg/poller Fetcher,Evaluator

package poller

import (
	"context"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// Fetcher retrieves one pump status from the proxy. Implemented by
// proxy.Client.
type Fetcher interface {
	// Fetch performs one request and decodes the result. It must
	// return within its configured timeout.
	Fetch(ctx context.Context) (*models.PumpStatus, error)
}

// Evaluator consumes the current snapshot plus poller-derived signals
// after every poll cycle and on staleness ticks. Implemented by
// alarm.Engine.
type Evaluator interface {
	Evaluate(snap *models.Snapshot, sig models.Signals)
}

// Clock abstracts wall-clock reads so staleness and backoff decisions
// are testable without real waits.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
