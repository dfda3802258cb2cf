// Package relay implements the relay manager.
//
// The Manager is an actor: one goroutine owns the watch list, the relay target and the
// stream handle. Follow/Unfollow run their upstream calls on the caller's goroutine and
// send the resulting state transitions to the actor. Stream deliveries are queued without
// blocking; the actor stamps each with the relay target and passes it to a forwarder
// goroutine, which posts them downstream in order. The actor never waits on a post.
package relay
