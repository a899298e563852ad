// Package events defines the allocation events emitted on the event bus.
//
// Available event types:
//   - RunEvent: state transition, rebalance move or failure of one run
package events
