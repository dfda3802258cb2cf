package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/pscheid92/tweetrelay/internal/domain"
)

// tweetSource is the subset of *twitter.TweetStream the consumer reads from.
type tweetSource interface {
	Tweets() <-chan *twitter.TweetMessage
	SystemMessages() <-chan map[twitter.SystemMessageType]twitter.SystemMessage
	DisconnectionError() <-chan *twitter.DisconnectionError
	Err() <-chan error
	Close()
}

type stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	source  tweetSource
	handler domain.TweetHandler

	closeOnce sync.Once
	done      chan struct{}
}

func newStream(ctx context.Context, source tweetSource, handler domain.TweetHandler) *stream {
	ctx, cancel := context.WithCancel(ctx)
	return &stream{
		ctx:     ctx,
		cancel:  cancel,
		source:  source,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Close stops the consumer and the underlying connection. Safe to call more than once.
func (s *stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.source.Close()
	})
}

// consume runs until the stream is closed or the platform disconnects it. Nothing
// reconnects a dropped stream.
func (s *stream) consume() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			slog.Info("Filtered stream closed")
			return
		case msg := <-s.source.Tweets():
			for _, tweet := range convertMessage(msg) {
				s.handler(tweet)
			}
		case sys := <-s.source.SystemMessages():
			for kind, m := range sys {
				slog.Warn("Filtered stream system message", "type", string(kind), "message", fmt.Sprintf("%+v", m))
			}
		case derr := <-s.source.DisconnectionError():
			slog.Error("Filtered stream disconnected", "error", fmt.Sprintf("%+v", derr))
			return
		case err := <-s.source.Err():
			slog.Error("Filtered stream error", "error", err)
		}
	}
}

// convertMessage turns a stream message into tweets, filling author details from the
// message's includes.
func convertMessage(msg *twitter.TweetMessage) []domain.Tweet {
	if msg == nil || msg.Raw == nil {
		return nil
	}

	users := make(map[string]*twitter.UserObj)
	if msg.Raw.Includes != nil {
		for _, u := range msg.Raw.Includes.Users {
			if u != nil {
				users[u.ID] = u
			}
		}
	}

	tweets := make([]domain.Tweet, 0, len(msg.Raw.Tweets))
	for _, t := range msg.Raw.Tweets {
		if t == nil {
			continue
		}
		tweet := domain.Tweet{ID: t.ID, Text: t.Text, AuthorID: t.AuthorID}
		if u, ok := users[t.AuthorID]; ok {
			tweet.AuthorUsername = u.UserName
			tweet.AuthorName = u.Name
		}
		tweets = append(tweets, tweet)
	}
	return tweets
}
