package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/tweetrelay/internal/domain"
	"github.com/pscheid92/tweetrelay/internal/metrics"
	"github.com/pscheid92/tweetrelay/internal/platform/correlation"
	"golang.org/x/time/rate"
)

const limiterExpiry = 10 * time.Minute

const (
	replyNotFollowingAny = "Not following any users."
	replyRateLimited     = "Slow down, you are sending commands too fast."
	replyListFailed      = "Error listing followed users: %v"
)

// relayService is the subset of the relay manager the command surface drives.
type relayService interface {
	Follow(ctx context.Context, channelID, username string) (domain.FollowResult, error)
	Unfollow(ctx context.Context, username string) error
	List(ctx context.Context) ([]string, error)
}

// Message is an incoming chat message, already filtered for bot authors.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
}

// Surface turns chat messages into relay operations and one-line replies.
type Surface struct {
	relay   relayService
	limiter *middleware.RateLimiterMemoryStore
}

// NewSurface builds a command surface that allows each chat user ratePerSecond commands
// with the given burst.
func NewSurface(relay relayService, ratePerSecond float64, burst int) *Surface {
	return &Surface{
		relay: relay,
		limiter: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(ratePerSecond),
				Burst:     burst,
				ExpiresIn: limiterExpiry,
			},
		),
	}
}

// Handle runs the command in msg. handled is false when msg is not a command, in which
// case no reply must be sent.
func (s *Surface) Handle(ctx context.Context, msg Message) (reply string, handled bool) {
	cmd, ok := Parse(msg.Content)
	if !ok {
		return "", false
	}

	ctx = correlation.WithID(ctx, correlation.OriginCommand, msg.ID)

	if allowed, _ := s.limiter.Allow(msg.AuthorID); !allowed {
		metrics.CommandsRateLimitedTotal.Inc()
		slog.WarnContext(ctx, "Command rate limited", "user_id", msg.AuthorID, "command", string(cmd.Verb))
		return replyRateLimited, true
	}

	start := time.Now()
	reply, result := s.dispatch(ctx, msg, cmd)
	metrics.CommandDuration.WithLabelValues(string(cmd.Verb)).Observe(time.Since(start).Seconds())
	metrics.CommandsTotal.WithLabelValues(string(cmd.Verb), result).Inc()

	slog.InfoContext(ctx, "Command handled", "command", string(cmd.Verb), "arg", cmd.Arg, "result", result, "user_id", msg.AuthorID, "channel_id", msg.ChannelID)
	return reply, true
}

func (s *Surface) dispatch(ctx context.Context, msg Message, cmd Command) (string, string) {
	switch cmd.Verb {
	case VerbFollow:
		return s.follow(ctx, msg.ChannelID, cmd.Arg)
	case VerbUnfollow:
		return s.unfollow(ctx, cmd.Arg)
	case VerbList:
		return s.list(ctx)
	default:
		return "", "unknown"
	}
}

func (s *Surface) follow(ctx context.Context, channelID, arg string) (string, string) {
	if arg == "" {
		return usage(VerbFollow), "usage"
	}

	result, err := s.relay.Follow(ctx, channelID, arg)
	if err != nil {
		logCommandError(ctx, VerbFollow, arg, err)
		return fmt.Sprintf("Error following user: %v", err), resultLabel(err)
	}

	name := displayName(arg)
	if result == domain.FollowAlreadyFollowing {
		return fmt.Sprintf("Already following @%s", name), result.String()
	}
	return fmt.Sprintf("Now following tweets from @%s", name), result.String()
}

func (s *Surface) unfollow(ctx context.Context, arg string) (string, string) {
	if arg == "" {
		return usage(VerbUnfollow), "usage"
	}

	if err := s.relay.Unfollow(ctx, arg); err != nil {
		logCommandError(ctx, VerbUnfollow, arg, err)
		return fmt.Sprintf("Error unfollowing user: %v", err), resultLabel(err)
	}
	return fmt.Sprintf("Stopped following @%s", displayName(arg)), "removed"
}

func (s *Surface) list(ctx context.Context) (string, string) {
	names, err := s.relay.List(ctx)
	if err != nil {
		logCommandError(ctx, VerbList, "", err)
		return fmt.Sprintf(replyListFailed, err), resultLabel(err)
	}
	if len(names) == 0 {
		return replyNotFollowingAny, "empty"
	}

	var b strings.Builder
	b.WriteString("Currently following:")
	for _, name := range names {
		b.WriteString("\n@")
		b.WriteString(name)
	}
	return b.String(), "listed"
}

// displayName echoes the name as the user typed it, without a leading @.
func displayName(arg string) string {
	return strings.TrimPrefix(strings.TrimSpace(arg), "@")
}

func usage(verb Verb) string {
	return fmt.Sprintf("Usage: %s%s <username>", Prefix, verb)
}

// resultLabel maps an error to a low-cardinality metric label.
func resultLabel(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return string(domain.KindOf(err))
}

// logCommandError logs expected user errors at info and everything else at error.
func logCommandError(ctx context.Context, verb Verb, arg string, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidAuthor, domain.KindUnknownAuthor, domain.KindNotFollowing, domain.KindNoActiveStream:
		slog.InfoContext(ctx, "Command rejected", "command", string(verb), "arg", arg, "error", err)
	default:
		slog.ErrorContext(ctx, "Command failed", "command", string(verb), "arg", arg, "error", err)
	}
}
