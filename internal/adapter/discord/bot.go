package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pscheid92/tweetrelay/internal/command"
)

const commandTimeout = 30 * time.Second

// EmbedColor is the side bar color of relayed tweets.
const EmbedColor = 0x3498db

var errNotReady = errors.New("discord gateway not ready")

// messageAPI is the REST subset of *discordgo.Session the bot uses.
type messageAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// CommandHandler handles one chat message and returns the reply to send, if any.
type CommandHandler interface {
	Handle(ctx context.Context, msg command.Message) (reply string, handled bool)
}

// Bot is the Discord side of the relay: it posts notifications and feeds chat messages
// to the command handler.
type Bot struct {
	session *discordgo.Session
	api     messageAPI
	handler CommandHandler

	// cached looks a channel up in the gateway state cache.
	cached func(channelID string) (*discordgo.Channel, error)
	ready  func() bool
	selfID func() string
}

func NewBot(token string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session: session,
		api:     session,
		cached:  session.State.Channel,
		ready:   func() bool { return session.DataReady },
		selfID: func() string {
			if session.State.User == nil {
				return ""
			}
			return session.State.User.ID
		},
	}
	return b, nil
}

// Open registers handler for chat messages and connects the gateway.
func (b *Bot) Open(handler CommandHandler) error {
	b.handler = handler
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord gateway: %w", err)
	}
	return nil
}

// Ready reports whether the gateway session has received its ready event.
func (b *Bot) Ready(_ context.Context) error {
	if !b.ready() {
		return errNotReady
	}
	return nil
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(m.Message)
}

func (b *Bot) handleMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == b.selfID() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply, handled := b.handler.Handle(ctx, command.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
	if !handled || reply == "" {
		return
	}

	if _, err := b.api.ChannelMessageSend(m.ChannelID, reply, discordgo.WithContext(ctx)); err != nil {
		slog.ErrorContext(ctx, "Failed to send command reply", "channel_id", m.ChannelID, "error", err)
	}
}
