package flow

import (
	"context"

	"github.com/rs/zerolog"

	"community-hub/internal/chat"
)

// Broadcaster is the slice of the hub the notifier needs.
type Broadcaster interface {
	Relay(event string, data any)
}

// Notifier relays execution status records to every connected client and
// forwards cancellation requests to the runner. Pure relay: no persistence,
// no de-duplication, no per-execution ordering. Updates that race can reach
// clients out of order, as in the source system.
type Notifier struct {
	hub    Broadcaster
	runner Runner
	log    zerolog.Logger
}

func NewNotifier(hub Broadcaster, runner Runner, log zerolog.Logger) *Notifier {
	return &Notifier{hub: hub, runner: runner, log: log}
}

// Notify broadcasts an execution_update with the full record.
func (n *Notifier) Notify(ex Execution) {
	n.hub.Relay(chat.EventExecutionUpdate, ex)
}

// RequestCancel asks the runner to stop an execution. Advisory only; there
// is no confirmation the job actually stopped.
func (n *Notifier) RequestCancel(ctx context.Context, flowID string, executionID int64) error {
	if err := n.runner.Cancel(ctx, flowID, executionID); err != nil {
		n.log.Warn().Err(err).Str("flow_id", flowID).Int64("execution_id", executionID).Msg("cancel request failed")
		return err
	}
	return nil
}
