// Package history guards the read of the service's history list: at most one
// read per activation, and no delivery once the owner has lost interest.
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/colorlens/colorlens/pkg/errors"
	"github.com/colorlens/colorlens/pkg/transfer"
)

// Fetcher reads the history list. *transfer.Client satisfies it.
type Fetcher interface {
	History(ctx context.Context) ([]transfer.HistoryEntry, error)
}

// Outcome is what a guarded read delivers: entries, or a classified error.
type Outcome struct {
	Entries []transfer.HistoryEntry
	Err     error
}

// Guard runs Fetcher.History at most once per activation cycle.
//
// The deliver callback runs on the fetch goroutine while the guard's lock is
// held, so it must not call back into the Guard.
type Guard struct {
	fetcher Fetcher
	deliver func(Outcome)

	mu         sync.Mutex
	activation uint64
	active     bool
	triggered  bool
	pending    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewGuard creates an inactive guard.
func NewGuard(fetcher Fetcher, deliver func(Outcome)) *Guard {
	return &Guard{fetcher: fetcher, deliver: deliver}
}

// Activate opens a new activation cycle. Calling it again while the guard is
// already active is a no-op, so repeated re-evaluations of the same view
// never re-arm the read.
func (g *Guard) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return
	}
	g.activation++
	g.active = true
	g.triggered = false
	slog.Info("history_guard_activated", "activation", g.activation)
}

// Trigger issues the read if this activation has not issued one yet. It
// reports whether a read was started. Outside an activation it does nothing.
func (g *Guard) Trigger(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || g.triggered {
		return false
	}
	g.triggered = true
	g.pending = true

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	activation := g.activation

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()

		entries, err := g.fetcher.History(ctx)
		g.complete(activation, Outcome{Entries: entries, Err: err})
	}()

	slog.Info("history_guard_triggered", "activation", activation)
	return true
}

func (g *Guard) complete(activation uint64, out Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if activation == g.activation {
		g.pending = false
	}

	if !g.active || activation != g.activation {
		slog.Info("history_guard_dropped", "activation", activation, "reason", "interest_revoked")
		return
	}
	if errors.KindOf(out.Err) == errors.KindCancelled {
		slog.Info("history_guard_dropped", "activation", activation, "reason", "cancelled")
		return
	}

	if out.Err != nil {
		slog.Warn("history_guard_failed", "activation", activation, "error", out.Err)
	} else {
		slog.Info("history_guard_delivered", "activation", activation, "entry_count", len(out.Entries))
	}
	if g.deliver != nil {
		g.deliver(out)
	}
}

// Deactivate revokes interest. An in-flight read is cancelled and its
// outcome, if it still arrives, is dropped. The next Activate re-arms the
// guard.
func (g *Guard) Deactivate() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return
	}
	g.active = false
	g.pending = false
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	slog.Info("history_guard_deactivated", "activation", g.activation)
}

// Pending reports whether the current activation's read is still running.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Close deactivates the guard and waits for outstanding reads to return.
func (g *Guard) Close() {
	g.Deactivate()
	g.wg.Wait()
}
