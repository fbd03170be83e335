// Package coordinator hosts one single-goroutine actor per entity key. Each
// actor owns the WebSocket connections opened for its entity and relays
// broadcast events to them in the order it receives them.
//
// Actors are addressed through a Backing. Registry is the in-process
// backing: a sharded map that creates coordinators on first use and retires
// them once they have been idle without connections.
package coordinator
