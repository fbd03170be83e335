// Package app provides the application service layer.
//
// Orchestrates use cases: realtime token issuance, cart mutations and conversation
// messaging. Every mutation is persisted first and then announced on the entity's
// coordinator. Depends on domain interfaces, not concrete implementations.
package app
