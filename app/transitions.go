package app

import (
	"context"

	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/infra/logger"
	"github.com/kilianp07/chairlink/internal/eventbus"
)

// logTransitions subscribes to the session bus and logs every transition
// until ctx is cancelled. The returned channel closes when it stopped.
func logTransitions(ctx context.Context, bus *eventbus.TypedBus[session.Transition], log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case tr, ok := <-sub:
				if !ok {
					return
				}
				switch {
				case tr.Err != nil:
					log.Warnf("session %d: %s -> %s: %v", tr.Attempt, tr.From, tr.To, tr.Err)
				case tr.To == session.StateActive:
					log.Infof("session %d: %s -> %s with %s", tr.Attempt, tr.From, tr.To, tr.Peer)
				default:
					log.Debugf("session %d: %s -> %s", tr.Attempt, tr.From, tr.To)
				}
			}
		}
	}()
	return done
}
