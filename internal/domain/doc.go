// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (errors.go, tweet.go, upstream.go, downstream.go, relay.go) hold
// the shared types and the contracts the relay depends on. No platform code lives here:
// the Twitter and Discord adapters implement these interfaces.
package domain
