// Package connection implements the Connection Manager component.
//
// It owns the WebSocket channels of one view:
//   - SymbolManager: aggregate feed handoff to a per-symbol detail feed,
//     plus the symbol's chat channel
//   - MarketManager: the aggregate feed in list mode with a one-shot
//     delayed reconnect
//
// Each manager is an actor. Socket pumps, timers and identity resolution
// post closures into one inbox drained by a single goroutine, which owns the
// series and transcript stores and publishes immutable state snapshots.
package connection
