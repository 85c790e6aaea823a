// Package notify pkg/notify/interfaces.go

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/ondrej1024/m5-minimed-monitor/pkg/notify Sink

package notify

import (
	"context"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// Sink consumes alarm-state transitions. Implementations trigger the
// actual sound/visual/remote cue; the engine guarantees exactly one
// call per severity transition.
type Sink interface {
	// Notify delivers one alarm transition.
	Notify(ctx context.Context, t *models.AlarmTransition) error

	// IsEnabled returns whether the sink is active.
	IsEnabled() bool
}
