package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keeper sends hardware heartbeats from its own goroutine so the controller's
// safety timeout is fed even when the session loop stalls.
type Keeper struct {
	state    *State
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sent   atomic.Uint64
	failed atomic.Uint64
}

// StartKeeper launches the heartbeat keeper. It runs until ctx is cancelled
// or Stop is called.
func (s *State) StartKeeper(ctx context.Context) *Keeper {
	ctx, cancel := context.WithCancel(ctx)
	k := &Keeper{state: s, interval: s.cfg.HeartbeatInterval, cancel: cancel}
	k.wg.Add(1)
	go k.run(ctx)
	return k
}

func (k *Keeper) run(ctx context.Context) {
	defer k.wg.Done()
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.state.Heartbeat(); err != nil {
				k.failed.Add(1)
				continue
			}
			k.sent.Add(1)
		}
	}
}

// Stop cancels the keeper and waits for its goroutine to exit.
func (k *Keeper) Stop() {
	k.cancel()
	k.wg.Wait()
}

// Sent returns the number of successful heartbeats.
func (k *Keeper) Sent() uint64 { return k.sent.Load() }

// Failed returns the number of failed heartbeats.
func (k *Keeper) Failed() uint64 { return k.failed.Load() }
