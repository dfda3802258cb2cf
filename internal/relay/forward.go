package relay

import (
	"context"
	"log/slog"

	"github.com/pscheid92/tweetrelay/internal/domain"
	"github.com/pscheid92/tweetrelay/internal/metrics"
	"github.com/pscheid92/tweetrelay/internal/platform/correlation"
)

// delivery is one tweet bound for the relay target captured when it was queued.
type delivery struct {
	target string
	tweet  domain.Tweet
}

// HandleTweet is the stream's delivery callback. It never blocks the stream goroutine: a
// full queue drops the event.
func (m *Manager) HandleTweet(tweet domain.Tweet) {
	metrics.EventsReceivedTotal.Inc()

	select {
	case m.eventCh <- tweet:
		metrics.RelayQueueDepth.Set(float64(len(m.eventCh)))
	default:
		metrics.EventsDroppedTotal.WithLabelValues("queue_full").Inc()
		slog.Warn("Relay queue full, dropping tweet", "tweet_id", tweet.ID, "capacity", cap(m.eventCh))
	}
}

// enqueuePost runs on the actor and hands the tweet to the forwarder without waiting on
// downstream I/O.
func (m *Manager) enqueuePost(tweet domain.Tweet) {
	if m.target == "" {
		metrics.EventsDroppedTotal.WithLabelValues("no_target").Inc()
		slog.Warn("Tweet delivered before relay target was bound", "tweet_id", tweet.ID)
		return
	}

	select {
	case m.postCh <- delivery{target: m.target, tweet: tweet}:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("post_queue_full").Inc()
		slog.Warn("Post queue full, dropping tweet", "tweet_id", tweet.ID, "capacity", cap(m.postCh))
	}
}

// runForwarder posts queued deliveries one at a time until the actor stops.
func (m *Manager) runForwarder() {
	defer close(m.forwarderDone)

	for {
		select {
		case <-m.done:
			return
		case d := <-m.postCh:
			m.forward(d)
		}
	}
}

// forward posts one notification. Failures are logged and counted only; nobody is
// waiting on this path.
func (m *Manager) forward(d delivery) {
	ctx, cancel := context.WithTimeout(correlation.WithID(m.ctx, correlation.OriginStream, d.tweet.ID), postTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Relay forwarder panic recovered", "panic", r)
			metrics.RelayPanicsTotal.Inc()
		}
	}()

	channel, err := m.downstream.ResolveChannel(ctx, d.target)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("channel_unresolved").Inc()
		slog.ErrorContext(ctx, "Failed to resolve relay target", "channel_id", d.target, "error", err)
		return
	}

	notification := domain.NewNotification(d.tweet, m.clock.Now())
	if err := m.downstream.Post(ctx, channel, notification); err != nil {
		metrics.NotificationsPostedTotal.WithLabelValues("error").Inc()
		slog.ErrorContext(ctx, "Failed to post notification", "channel_id", channel.ID, "author", d.tweet.AuthorUsername, "error", err)
		return
	}

	metrics.NotificationsPostedTotal.WithLabelValues("success").Inc()
	slog.DebugContext(ctx, "Notification posted", "channel_id", channel.ID, "author", d.tweet.AuthorUsername)
}
