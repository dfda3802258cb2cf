package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/pscheid92/tweetrelay/internal/domain"
	"github.com/pscheid92/tweetrelay/internal/platform/config"
)

const (
	apiHost        = "https://api.twitter.com"
	requestTimeout = 30 * time.Second
	ruleTag        = "tweetrelay"
)

// lookupAPI is the user lookup subset of the API client.
type lookupAPI interface {
	UserNameLookup(ctx context.Context, usernames []string, opts twitter.UserLookupOpts) (*twitter.UserLookupResponse, error)
}

// rulesAPI is the filtered-stream rule subset of the API client.
type rulesAPI interface {
	TweetSearchStreamAddRule(ctx context.Context, rules []twitter.TweetSearchStreamRule, dryRun bool) (*twitter.TweetSearchStreamAddRuleResponse, error)
	TweetSearchStreamRules(ctx context.Context, ruleIDs []twitter.TweetSearchStreamRuleID) (*twitter.TweetSearchStreamRulesResponse, error)
	TweetSearchStreamDeleteRuleByID(ctx context.Context, ruleIDs []twitter.TweetSearchStreamRuleID, dryRun bool) (*twitter.TweetSearchStreamDeleteRuleResponse, error)
}

// Client talks to the Twitter API v2. User lookups are signed with the user-context
// OAuth 1.0a credentials; rules and the stream use the app bearer token.
type Client struct {
	lookup lookupAPI
	rules  rulesAPI
	open   func(ctx context.Context) (tweetSource, error)
}

func NewClient(cfg config.TwitterConfig) *Client {
	oauthConfig := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	userClient := oauthConfig.Client(context.Background(), oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret))
	userClient.Timeout = requestTimeout

	bearer := bearerAuthorizer{token: cfg.BearerToken}

	lookup := &twitter.Client{Authorizer: signedAuthorizer{}, Client: userClient, Host: apiHost}
	rules := &twitter.Client{Authorizer: bearer, Client: &http.Client{Timeout: requestTimeout}, Host: apiHost}
	// The stream is long-lived, so its client has no overall timeout.
	stream := &twitter.Client{Authorizer: bearer, Client: &http.Client{}, Host: apiHost}

	return &Client{
		lookup: lookup,
		rules:  rules,
		open: func(ctx context.Context) (tweetSource, error) {
			return stream.TweetSearchStream(ctx, twitter.TweetSearchStreamOpts{
				Expansions:  []twitter.Expansion{twitter.ExpansionAuthorID},
				TweetFields: []twitter.TweetField{twitter.TweetFieldAuthorID, twitter.TweetFieldCreatedAt},
			})
		},
	}
}

func (c *Client) ResolveAuthor(ctx context.Context, username string) (*domain.Author, error) {
	resp, err := c.lookup.UserNameLookup(ctx, []string{username}, twitter.UserLookupOpts{})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, domain.UnknownAuthorError(username)
		}
		return nil, domain.UpstreamError("resolve author", err)
	}
	if resp == nil || resp.Raw == nil || len(resp.Raw.Users) == 0 || resp.Raw.Users[0] == nil {
		return nil, domain.UnknownAuthorError(username)
	}

	user := resp.Raw.Users[0]
	return &domain.Author{ID: user.ID, Username: user.UserName, Name: user.Name}, nil
}

func (c *Client) AddRule(ctx context.Context, expression string) (string, error) {
	rule := twitter.TweetSearchStreamRule{Value: expression, Tag: ruleTag}
	resp, err := c.rules.TweetSearchStreamAddRule(ctx, []twitter.TweetSearchStreamRule{rule}, false)
	if err != nil {
		return "", domain.UpstreamError("add rule", err)
	}
	if resp == nil || len(resp.Rules) == 0 || resp.Rules[0] == nil {
		return "", domain.UpstreamError("add rule", fmt.Errorf("no rule created for %q", expression))
	}

	id := string(resp.Rules[0].ID)
	slog.DebugContext(ctx, "Stream rule added", "rule_id", id, "expression", expression)
	return id, nil
}

func (c *Client) ListRules(ctx context.Context) ([]domain.Rule, error) {
	resp, err := c.rules.TweetSearchStreamRules(ctx, nil)
	if err != nil {
		return nil, domain.UpstreamError("list rules", err)
	}
	if resp == nil {
		return nil, nil
	}

	rules := make([]domain.Rule, 0, len(resp.Rules))
	for _, r := range resp.Rules {
		if r == nil {
			continue
		}
		rules = append(rules, domain.Rule{ID: string(r.ID), Expression: r.Value})
	}
	return rules, nil
}

func (c *Client) DeleteRule(ctx context.Context, ruleID string) error {
	ids := []twitter.TweetSearchStreamRuleID{twitter.TweetSearchStreamRuleID(ruleID)}
	if _, err := c.rules.TweetSearchStreamDeleteRuleByID(ctx, ids, false); err != nil {
		return domain.UpstreamError("delete rule", err)
	}
	slog.DebugContext(ctx, "Stream rule deleted", "rule_id", ruleID)
	return nil
}

// OpenStream connects to the filtered stream and calls handler for every delivered
// tweet until the returned stream is closed or ctx is cancelled.
func (c *Client) OpenStream(ctx context.Context, handler domain.TweetHandler) (domain.Stream, error) {
	source, err := c.open(ctx)
	if err != nil {
		return nil, domain.UpstreamError("open stream", err)
	}

	s := newStream(ctx, source, handler)
	go s.consume()

	slog.Info("Filtered stream connected")
	return s, nil
}

// statusCode extracts the HTTP status from a JSON error body or, when the API answered
// with something else, from the raw HTTP error.
func statusCode(err error) int {
	var apiErr *twitter.ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var httpErr *twitter.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

type bearerAuthorizer struct {
	token string
}

func (a bearerAuthorizer) Add(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
}

// signedAuthorizer leaves the request alone; the oauth1 transport signs it.
type signedAuthorizer struct{}

func (signedAuthorizer) Add(*http.Request) {}
