package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pscheid92/tweetrelay/internal/domain"
)

// ResolveChannel looks the channel up in the gateway cache, falling back to the REST API.
func (b *Bot) ResolveChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	if b.cached != nil {
		if ch, err := b.cached(channelID); err == nil && ch != nil {
			return &domain.Channel{ID: ch.ID, Name: ch.Name}, nil
		}
	}

	ch, err := b.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, domain.DownstreamError("resolve channel", err)
	}
	return &domain.Channel{ID: ch.ID, Name: ch.Name}, nil
}

func (b *Bot) Post(ctx context.Context, channel *domain.Channel, n domain.Notification) error {
	if _, err := b.api.ChannelMessageSendEmbed(channel.ID, notificationEmbed(n), discordgo.WithContext(ctx)); err != nil {
		return domain.DownstreamError(fmt.Sprintf("post to channel %s", channel.ID), err)
	}
	return nil
}

func notificationEmbed(n domain.Notification) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "New Tweet from " + n.AuthorName,
		Description: n.Text,
		URL:         n.URL,
		Color:       EmbedColor,
		Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
	}
}
