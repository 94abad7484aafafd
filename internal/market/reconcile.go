package market

import (
	"context"
	"time"
)

// reconciliationLoop periodically evicts idle views.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile stops every view unused for longer than the idle timeout.
func (r *registryImpl) reconcile(ctx context.Context) {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*entry
	for symbol, e := range r.views {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e)
			delete(r.views, symbol)
			r.stats.Evicted++
		}
	}
	open := len(r.views)
	r.mu.Unlock()

	for _, e := range idle {
		r.stopView(ctx, e.view, "idle")
	}

	if len(idle) > 0 {
		r.logger.Info("reconciliation complete", "evicted", len(idle), "open", open)
	}
}
