package domain

import (
	"context"
	"strings"
)

const fromOperator = "from:"

// Rule is an upstream filter rule.
type Rule struct {
	ID         string
	Expression string
}

// FromRule returns the rule expression selecting posts authored by username.
func FromRule(username string) string {
	return fromOperator + username
}

// RuleTargets reports whether expression contains the from:username operator as a whole
// token. Comparison is case-insensitive.
func RuleTargets(expression, username string) bool {
	want := strings.ToLower(FromRule(username))
	tokens := strings.FieldsFunc(strings.ToLower(expression), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ')'
	})
	for _, token := range tokens {
		if token == want {
			return true
		}
	}
	return false
}

// TweetHandler receives stream deliveries. It is called from the stream's own goroutine
// and must not block.
type TweetHandler func(Tweet)

// Stream is an open filtered-stream connection. Close must be safe to call more than once.
type Stream interface {
	Close()
}

// Upstream is the streaming platform as the relay sees it.
type Upstream interface {
	ResolveAuthor(ctx context.Context, username string) (*Author, error)
	AddRule(ctx context.Context, expression string) (string, error)
	ListRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	// OpenStream connects the filtered stream. ctx bounds the connection's lifetime,
	// not just the handshake.
	OpenStream(ctx context.Context, handler TweetHandler) (Stream, error)
}
