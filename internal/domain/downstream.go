package domain

import "context"

// Channel is a resolved chat channel.
type Channel struct {
	ID   string
	Name string
}

// Downstream is the chat platform notifications are posted to.
type Downstream interface {
	ResolveChannel(ctx context.Context, channelID string) (*Channel, error)
	Post(ctx context.Context, channel *Channel, n Notification) error
}
