package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tweetrelay/internal/domain"
	"github.com/pscheid92/tweetrelay/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	commandTimeout  = 5 * time.Second  // actor round-trip timeout
	postTimeout     = 10 * time.Second // per-notification downstream timeout
	stopTimeout     = 10 * time.Second
	cmdBufferSize   = 64
	eventBufferSize = 256
	postBufferSize  = 256

	streamFlightKey = "stream"
)

// ErrStopped is returned by operations issued after Stop.
var ErrStopped = errors.New("relay manager stopped")

// managerCmd is the command interface for the Manager actor.
type managerCmd interface{ isManagerCmd() }

type baseManagerCmd struct{}

func (baseManagerCmd) isManagerCmd() {}

type snapshotCmd struct {
	baseManagerCmd
	author string
	reply  chan snapshot
}

type bindStreamCmd struct {
	baseManagerCmd
	stream    domain.Stream
	channelID string
	reply     chan bool
}

type watchCmd struct {
	baseManagerCmd
	author string
	reply  chan bool
}

type unwatchCmd struct {
	baseManagerCmd
	author string
	reply  chan bool
}

type stopCmd struct {
	baseManagerCmd
}

// snapshot is a copy of the actor state taken inside the loop.
type snapshot struct {
	streamOpen bool
	following  bool
	target     string
	watchList  []string
}

// Manager owns the watch list, the relay target and the stream connection. All state
// lives in one goroutine; callers talk to it through cmdCh and the stream hands
// deliveries over through eventCh.
type Manager struct {
	upstream   domain.Upstream
	downstream domain.Downstream
	clock      clockwork.Clock

	cmdCh         chan managerCmd
	eventCh       chan domain.Tweet
	postCh        chan delivery
	done          chan struct{}
	forwarderDone chan struct{}

	// ctx bounds the stream connection and in-flight posts, independent of the command
	// that opened the stream. Cancelled on Stop.
	ctx    context.Context
	cancel context.CancelFunc

	flights  singleflight.Group
	stopOnce sync.Once

	// actor-owned
	watchList map[string]struct{}
	target    string
	stream    domain.Stream
}

// NewManager creates the relay manager and starts its actor loop.
func NewManager(upstream domain.Upstream, downstream domain.Downstream, clock clockwork.Clock) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		upstream:      upstream,
		downstream:    downstream,
		clock:         clock,
		cmdCh:         make(chan managerCmd, cmdBufferSize),
		eventCh:       make(chan domain.Tweet, eventBufferSize),
		postCh:        make(chan delivery, postBufferSize),
		done:          make(chan struct{}),
		forwarderDone: make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		watchList:     make(map[string]struct{}),
	}
	go m.run()
	go m.runForwarder()
	return m
}

// Follow starts relaying posts by username. The first follow that opens the stream binds
// channelID as the relay target for the rest of the process.
func (m *Manager) Follow(ctx context.Context, channelID, username string) (domain.FollowResult, error) {
	username = domain.NormalizeUsername(username)
	if err := domain.ValidateUsername(username); err != nil {
		return 0, err
	}

	v, err, shared := m.flights.Do("follow:"+username, func() (any, error) {
		return m.follow(ctx, channelID, username)
	})
	if err != nil {
		return 0, err
	}
	if shared {
		slog.DebugContext(ctx, "Follow collapsed with concurrent request", "author", username)
	}
	return v.(domain.FollowResult), nil
}

func (m *Manager) follow(ctx context.Context, channelID, username string) (domain.FollowResult, error) {
	author, err := m.upstream.ResolveAuthor(ctx, username)
	recordUpstream("resolve_author", err)
	if err != nil {
		return 0, domain.UpstreamError("resolve author", err)
	}

	snap, err := m.snapshot(ctx, username)
	if err != nil {
		return 0, err
	}
	if snap.following {
		slog.InfoContext(ctx, "Author already followed", "author", username)
		return domain.FollowAlreadyFollowing, nil
	}

	if !snap.streamOpen {
		if err := m.openStream(ctx, channelID); err != nil {
			return 0, err
		}
	}

	ruleID, err := m.upstream.AddRule(ctx, domain.FromRule(username))
	recordUpstream("add_rule", err)
	if err != nil {
		return 0, domain.UpstreamError("add rule", err)
	}

	// The rule exists upstream now, so the caller going away must not skip the watch.
	if _, err := request(context.WithoutCancel(ctx), m, func(reply chan bool) managerCmd {
		return watchCmd{author: username, reply: reply}
	}); err != nil {
		slog.ErrorContext(ctx, "Rule created but watch list not updated", "author", username, "rule_id", ruleID, "error", err)
		return 0, err
	}

	slog.InfoContext(ctx, "Following author", "author", username, "author_id", author.ID, "rule_id", ruleID)
	return domain.FollowAdded, nil
}

// openStream opens the filtered stream once. Concurrent first follows share one attempt,
// so the first caller's channel becomes the relay target.
func (m *Manager) openStream(ctx context.Context, channelID string) error {
	_, err, _ := m.flights.Do(streamFlightKey, func() (any, error) {
		snap, err := m.snapshot(ctx, "")
		if err != nil {
			return nil, err
		}
		if snap.streamOpen {
			return nil, nil
		}

		stream, err := m.upstream.OpenStream(m.ctx, m.HandleTweet)
		recordUpstream("open_stream", err)
		if err != nil {
			return nil, domain.UpstreamError("open stream", err)
		}

		bound, err := m.bindStream(stream, channelID)
		if err != nil {
			return nil, err
		}
		if !bound {
			slog.DebugContext(ctx, "Opened stream not bound", "channel_id", channelID)
		}
		return nil, nil
	})
	return err
}

// bindStream hands an opened stream to the actor, which either binds it or closes it as
// a duplicate. It ignores the caller's context: once opened, the stream is owned by the
// actor. Only a stopped manager makes the caller close it.
func (m *Manager) bindStream(stream domain.Stream, channelID string) (bool, error) {
	reply := make(chan bool, 1)

	select {
	case m.cmdCh <- bindStreamCmd{stream: stream, channelID: channelID, reply: reply}:
	case <-m.done:
		stream.Close()
		return false, ErrStopped
	}

	select {
	case bound := <-reply:
		return bound, nil
	case <-m.done:
		// The actor may have bound it before stopping; Close is idempotent.
		stream.Close()
		return false, ErrStopped
	}
}

// Unfollow deletes every upstream rule selecting username and removes it from the watch
// list. Matching rules are deleted even when username is not being followed, which
// cleans up rules left behind by an earlier process.
func (m *Manager) Unfollow(ctx context.Context, username string) error {
	username = domain.NormalizeUsername(username)

	snap, err := m.snapshot(ctx, username)
	if err != nil {
		return err
	}
	if !snap.streamOpen {
		return domain.NoActiveStreamError()
	}

	rules, err := m.upstream.ListRules(ctx)
	recordUpstream("list_rules", err)
	if err != nil {
		return domain.UpstreamError("list rules", err)
	}

	deleted := 0
	for _, rule := range rules {
		if !domain.RuleTargets(rule.Expression, username) {
			continue
		}
		err := m.upstream.DeleteRule(ctx, rule.ID)
		recordUpstream("delete_rule", err)
		if err != nil {
			return domain.UpstreamError("delete rule", err)
		}
		deleted++
	}

	removed, err := request(context.WithoutCancel(ctx), m, func(reply chan bool) managerCmd {
		return unwatchCmd{author: username, reply: reply}
	})
	if err != nil {
		return err
	}
	if !removed {
		slog.InfoContext(ctx, "Unfollow for author not in watch list", "author", username, "rules_deleted", deleted)
		return domain.NotFollowingError(username)
	}

	slog.InfoContext(ctx, "Unfollowed author", "author", username, "rules_deleted", deleted)
	return nil
}

// List returns the followed screen names in sorted order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	snap, err := m.snapshot(ctx, "")
	if err != nil {
		return nil, err
	}
	return snap.watchList, nil
}

// Ready reports whether the actor loop is responsive.
func (m *Manager) Ready(ctx context.Context) error {
	_, err := m.snapshot(ctx, "")
	return err
}

// Stop shuts the actor and the forwarder down and closes the stream. Blocks until both
// have exited or the stop timeout is reached.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		select {
		case m.cmdCh <- stopCmd{}:
		case <-m.done:
			return
		}

		timeout := m.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		for _, ch := range []chan struct{}{m.done, m.forwarderDone} {
			select {
			case <-ch:
			case <-timeout.Chan():
				slog.Warn("Relay manager stop timeout exceeded", "timeout", stopTimeout)
				return
			}
		}
		slog.Info("Relay manager stopped gracefully")
	})
}

func (m *Manager) snapshot(ctx context.Context, author string) (snapshot, error) {
	return request(ctx, m, func(reply chan snapshot) managerCmd {
		return snapshotCmd{author: author, reply: reply}
	})
}

// request sends a command to the actor and waits for its reply.
func request[T any](ctx context.Context, m *Manager, build func(chan T) managerCmd) (T, error) {
	var zero T
	reply := make(chan T, 1)

	select {
	case m.cmdCh <- build(reply):
	case <-m.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	timer := m.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case v := <-reply:
		return v, nil
	case <-m.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.Chan():
		return zero, fmt.Errorf("relay command timed out after %v", commandTimeout)
	}
}

func (m *Manager) run() {
	defer close(m.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Relay manager panic recovered", "panic", r)
			metrics.RelayPanicsTotal.Inc()
			m.closeStream()
		}
	}()

	for {
		select {
		case cmd := <-m.cmdCh:
			switch c := cmd.(type) {
			case snapshotCmd:
				c.reply <- m.takeSnapshot(c.author)
			case bindStreamCmd:
				c.reply <- m.handleBindStream(c)
			case watchCmd:
				c.reply <- m.handleWatch(c.author)
			case unwatchCmd:
				c.reply <- m.handleUnwatch(c.author)
			case stopCmd:
				m.closeStream()
				return
			default:
				slog.Warn("Relay manager received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case tweet := <-m.eventCh:
			metrics.RelayQueueDepth.Set(float64(len(m.eventCh)))
			m.enqueuePost(tweet)
		}
	}
}

func (m *Manager) takeSnapshot(author string) snapshot {
	_, following := m.watchList[author]
	list := make([]string, 0, len(m.watchList))
	for name := range m.watchList {
		list = append(list, name)
	}
	slices.Sort(list)

	return snapshot{
		streamOpen: m.stream != nil,
		following:  author != "" && following,
		target:     m.target,
		watchList:  list,
	}
}

// handleBindStream is the Unopened -> Open transition. It only succeeds once; a
// duplicate stream is closed here.
func (m *Manager) handleBindStream(c bindStreamCmd) bool {
	if m.stream != nil {
		slog.Warn("Stream already bound, discarding duplicate", "target", m.target)
		c.stream.Close()
		return false
	}

	m.stream = c.stream
	m.target = c.channelID
	metrics.StreamOpen.Set(1)
	slog.Info("Stream opened, relay target bound", "channel_id", c.channelID)
	return true
}

func (m *Manager) handleWatch(author string) bool {
	if _, ok := m.watchList[author]; ok {
		return false
	}
	m.watchList[author] = struct{}{}
	metrics.FollowedAuthors.Set(float64(len(m.watchList)))
	return true
}

func (m *Manager) handleUnwatch(author string) bool {
	if _, ok := m.watchList[author]; !ok {
		return false
	}
	delete(m.watchList, author)
	metrics.FollowedAuthors.Set(float64(len(m.watchList)))
	return true
}

func (m *Manager) closeStream() {
	m.cancel()
	if m.stream != nil {
		m.stream.Close()
	}
}

func recordUpstream(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamCallsTotal.WithLabelValues(operation, status).Inc()
}
