// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (entity.go, cart.go, conversation.go, event.go, ...) hold shared
// types and the repository contracts consumed by the app layer. The event catalogue and its
// wire codec live here so producers and consumers share one closed set of variants.
package domain
