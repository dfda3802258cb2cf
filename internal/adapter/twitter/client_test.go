package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/pscheid92/tweetrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	lookupFn func(ctx context.Context, usernames []string) (*twitter.UserLookupResponse, error)
}

func (m *mockLookup) UserNameLookup(ctx context.Context, usernames []string, _ twitter.UserLookupOpts) (*twitter.UserLookupResponse, error) {
	return m.lookupFn(ctx, usernames)
}

type mockRules struct {
	addFn    func(rules []twitter.TweetSearchStreamRule) (*twitter.TweetSearchStreamAddRuleResponse, error)
	listFn   func() (*twitter.TweetSearchStreamRulesResponse, error)
	deleteFn func(ids []twitter.TweetSearchStreamRuleID) (*twitter.TweetSearchStreamDeleteRuleResponse, error)
}

func (m *mockRules) TweetSearchStreamAddRule(_ context.Context, rules []twitter.TweetSearchStreamRule, _ bool) (*twitter.TweetSearchStreamAddRuleResponse, error) {
	return m.addFn(rules)
}

func (m *mockRules) TweetSearchStreamRules(context.Context, []twitter.TweetSearchStreamRuleID) (*twitter.TweetSearchStreamRulesResponse, error) {
	return m.listFn()
}

func (m *mockRules) TweetSearchStreamDeleteRuleByID(_ context.Context, ids []twitter.TweetSearchStreamRuleID, _ bool) (*twitter.TweetSearchStreamDeleteRuleResponse, error) {
	return m.deleteFn(ids)
}

func ruleEntity(id, value string) *twitter.TweetSearchStreamRuleEntity {
	return &twitter.TweetSearchStreamRuleEntity{
		ID:                    twitter.TweetSearchStreamRuleID(id),
		TweetSearchStreamRule: twitter.TweetSearchStreamRule{Value: value},
	}
}

func TestResolveAuthor(t *testing.T) {
	tests := []struct {
		name     string
		resp     *twitter.UserLookupResponse
		err      error
		wantKind domain.ErrorKind
		want     *domain.Author
	}{
		{
			name: "found",
			resp: &twitter.UserLookupResponse{Raw: &twitter.UserRaw{Users: []*twitter.UserObj{{ID: "12", UserName: "jack", Name: "Jack"}}}},
			want: &domain.Author{ID: "12", Username: "jack", Name: "Jack"},
		},
		{
			name:     "empty result",
			resp:     &twitter.UserLookupResponse{Raw: &twitter.UserRaw{}},
			wantKind: domain.KindUnknownAuthor,
		},
		{
			name:     "nil raw",
			resp:     &twitter.UserLookupResponse{},
			wantKind: domain.KindUnknownAuthor,
		},
		{
			name:     "404",
			err:      &twitter.ErrorResponse{StatusCode: http.StatusNotFound},
			wantKind: domain.KindUnknownAuthor,
		},
		{
			name:     "404 without JSON body",
			err:      &twitter.HTTPError{Status: "404 Not Found", StatusCode: http.StatusNotFound},
			wantKind: domain.KindUnknownAuthor,
		},
		{
			name:     "502 without JSON body",
			err:      &twitter.HTTPError{Status: "502 Bad Gateway", StatusCode: http.StatusBadGateway},
			wantKind: domain.KindUpstream,
		},
		{
			name:     "401",
			err:      &twitter.ErrorResponse{StatusCode: http.StatusUnauthorized},
			wantKind: domain.KindUpstream,
		},
		{
			name:     "transport failure",
			err:      errors.New("connection refused"),
			wantKind: domain.KindUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{lookup: &mockLookup{lookupFn: func(_ context.Context, usernames []string) (*twitter.UserLookupResponse, error) {
				assert.Equal(t, []string{"jack"}, usernames)
				return tt.resp, tt.err
			}}}

			author, err := c.ResolveAuthor(context.Background(), "jack")

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, author)
		})
	}
}

func TestAddRule(t *testing.T) {
	var got []twitter.TweetSearchStreamRule
	c := &Client{rules: &mockRules{addFn: func(rules []twitter.TweetSearchStreamRule) (*twitter.TweetSearchStreamAddRuleResponse, error) {
		got = rules
		return &twitter.TweetSearchStreamAddRuleResponse{Rules: []*twitter.TweetSearchStreamRuleEntity{ruleEntity("99", rules[0].Value)}}, nil
	}}}

	id, err := c.AddRule(context.Background(), "from:jack")

	require.NoError(t, err)
	assert.Equal(t, "99", id)
	require.Len(t, got, 1)
	assert.Equal(t, "from:jack", got[0].Value)
	assert.Equal(t, ruleTag, got[0].Tag)
}

func TestAddRule_NoRuleReturned(t *testing.T) {
	c := &Client{rules: &mockRules{addFn: func([]twitter.TweetSearchStreamRule) (*twitter.TweetSearchStreamAddRuleResponse, error) {
		return &twitter.TweetSearchStreamAddRuleResponse{}, nil
	}}}

	_, err := c.AddRule(context.Background(), "from:jack")

	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestAddRule_APIError(t *testing.T) {
	c := &Client{rules: &mockRules{addFn: func([]twitter.TweetSearchStreamRule) (*twitter.TweetSearchStreamAddRuleResponse, error) {
		return nil, &twitter.ErrorResponse{StatusCode: http.StatusTooManyRequests}
	}}}

	_, err := c.AddRule(context.Background(), "from:jack")

	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestListRules(t *testing.T) {
	c := &Client{rules: &mockRules{listFn: func() (*twitter.TweetSearchStreamRulesResponse, error) {
		return &twitter.TweetSearchStreamRulesResponse{Rules: []*twitter.TweetSearchStreamRuleEntity{
			ruleEntity("1", "from:jack"),
			nil,
			ruleEntity("2", "from:alice OR from:bob"),
		}}, nil
	}}}

	rules, err := c.ListRules(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []domain.Rule{
		{ID: "1", Expression: "from:jack"},
		{ID: "2", Expression: "from:alice OR from:bob"},
	}, rules)
}

func TestDeleteRule(t *testing.T) {
	var got []twitter.TweetSearchStreamRuleID
	c := &Client{rules: &mockRules{deleteFn: func(ids []twitter.TweetSearchStreamRuleID) (*twitter.TweetSearchStreamDeleteRuleResponse, error) {
		got = ids
		return &twitter.TweetSearchStreamDeleteRuleResponse{}, nil
	}}}

	require.NoError(t, c.DeleteRule(context.Background(), "7"))
	assert.Equal(t, []twitter.TweetSearchStreamRuleID{"7"}, got)
}

func TestDeleteRule_Error(t *testing.T) {
	c := &Client{rules: &mockRules{deleteFn: func([]twitter.TweetSearchStreamRuleID) (*twitter.TweetSearchStreamDeleteRuleResponse, error) {
		return nil, errors.New("boom")
	}}}

	err := c.DeleteRule(context.Background(), "7")

	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestBearerAuthorizer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/2/tweets/search/stream", nil)

	bearerAuthorizer{token: "abc"}.Add(req)

	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
}

// --- Stream ---

type fakeSource struct {
	tweets chan *twitter.TweetMessage
	system chan map[twitter.SystemMessageType]twitter.SystemMessage
	discon chan *twitter.DisconnectionError
	errs   chan error

	mu     sync.Mutex
	closed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tweets: make(chan *twitter.TweetMessage),
		system: make(chan map[twitter.SystemMessageType]twitter.SystemMessage),
		discon: make(chan *twitter.DisconnectionError),
		errs:   make(chan error),
	}
}

func (f *fakeSource) Tweets() <-chan *twitter.TweetMessage { return f.tweets }
func (f *fakeSource) SystemMessages() <-chan map[twitter.SystemMessageType]twitter.SystemMessage {
	return f.system
}
func (f *fakeSource) DisconnectionError() <-chan *twitter.DisconnectionError { return f.discon }
func (f *fakeSource) Err() <-chan error { return f.errs }

func (f *fakeSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSource) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func message(tweets []*twitter.TweetObj, users []*twitter.UserObj) *twitter.TweetMessage {
	return &twitter.TweetMessage{Raw: &twitter.TweetRaw{
		Tweets:   tweets,
		Includes: &twitter.TweetRawIncludes{Users: users},
	}}
}

func TestConvertMessage(t *testing.T) {
	msg := message(
		[]*twitter.TweetObj{
			{ID: "100", Text: "hello", AuthorID: "1"},
			nil,
			{ID: "101", Text: "orphan", AuthorID: "2"},
		},
		[]*twitter.UserObj{{ID: "1", UserName: "jack", Name: "Jack"}},
	)

	got := convertMessage(msg)

	assert.Equal(t, []domain.Tweet{
		{ID: "100", Text: "hello", AuthorID: "1", AuthorUsername: "jack", AuthorName: "Jack"},
		{ID: "101", Text: "orphan", AuthorID: "2"},
	}, got)
}

func TestConvertMessage_Empty(t *testing.T) {
	assert.Empty(t, convertMessage(nil))
	assert.Empty(t, convertMessage(&twitter.TweetMessage{}))
	assert.Empty(t, convertMessage(&twitter.TweetMessage{Raw: &twitter.TweetRaw{}}))
}

func TestOpenStream_DeliversTweets(t *testing.T) {
	source := newFakeSource()
	c := &Client{open: func(context.Context) (tweetSource, error) { return source, nil }}

	received := make(chan domain.Tweet, 4)
	s, err := c.OpenStream(context.Background(), func(tw domain.Tweet) { received <- tw })
	require.NoError(t, err)
	t.Cleanup(s.Close)

	source.errs <- errors.New("decode failed")
	source.tweets <- message([]*twitter.TweetObj{{ID: "5", Text: "hi", AuthorID: "1"}}, []*twitter.UserObj{{ID: "1", UserName: "jack", Name: "Jack"}})

	select {
	case tweet := <-received:
		assert.Equal(t, "5", tweet.ID)
		assert.Equal(t, "jack", tweet.AuthorUsername)
	case <-time.After(time.Second):
		t.Fatal("tweet not delivered")
	}
}

func TestOpenStream_OpenFailure(t *testing.T) {
	c := &Client{open: func(context.Context) (tweetSource, error) {
		return nil, &twitter.ErrorResponse{StatusCode: http.StatusUnauthorized}
	}}

	_, err := c.OpenStream(context.Background(), func(domain.Tweet) {})

	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestStream_CloseStopsConsumer(t *testing.T) {
	source := newFakeSource()
	s := newStream(context.Background(), source, func(domain.Tweet) {})
	go s.consume()

	s.Close()
	s.Close()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 1, source.closeCount())
}

func TestStream_DisconnectStopsConsumer(t *testing.T) {
	source := newFakeSource()
	s := newStream(context.Background(), source, func(domain.Tweet) {})
	go s.consume()

	source.discon <- &twitter.DisconnectionError{}

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on disconnect")
	}
}
