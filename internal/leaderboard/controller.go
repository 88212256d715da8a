// Package leaderboard turns a mutable ranking into owner-scoped, paginated
// views driven by reaction events.
//
// Each session freezes the ranking when it opens, so pages never shift while
// someone is browsing. Navigation requests for one session are applied by a
// goroutine owned by that session, in the order they arrive; sessions close
// when their message is deleted, on request, or after an idle period.
package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-mod-assistant/internal/domain"
	"github.com/tbourn/go-mod-assistant/internal/metrics"
)

const (
	// DefaultPageSize is the number of entries per page.
	DefaultPageSize = 10
	// DefaultSessionTTL is how long a session may sit idle before it closes.
	DefaultSessionTTL = 5 * time.Minute
)

// SessionID identifies an open session.
type SessionID string

// RankingSource supplies the current ranking. Order does not matter.
type RankingSource interface {
	Ranking() []domain.LeaderboardEntry
}

// Options tunes a Controller. Zero values take the defaults.
type Options struct {
	PageSize   int
	SessionTTL time.Duration
	Clock      clockwork.Clock
}

// Controller owns all open sessions.
type Controller struct {
	source   RankingSource
	pageSize int
	ttl      time.Duration
	clock    clockwork.Clock

	mu        sync.Mutex
	sessions  map[SessionID]*session
	byMessage map[snowflake.ID]SessionID
}

// NewController builds a controller over source.
func NewController(source RankingSource, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Controller{
		source:    source,
		pageSize:  opts.PageSize,
		ttl:       opts.SessionTTL,
		clock:     opts.Clock,
		sessions:  make(map[SessionID]*session),
		byMessage: make(map[snowflake.ID]SessionID),
	}
}

// PageSize returns the configured page size.
func (c *Controller) PageSize() int { return c.pageSize }

// Sorted returns a sorted copy of the live ranking: score descending, ties
// broken by ascending user id.
func (c *Controller) Sorted() []domain.LeaderboardEntry {
	entries := slices.Clone(c.source.Ranking())
	slices.SortFunc(entries, func(a, b domain.LeaderboardEntry) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return entries
}

// OpenSession snapshots the ranking for owner and returns page 0.
func (c *Controller) OpenSession(owner snowflake.ID) (SessionID, PageView) {
	s := &session{
		id:       SessionID(uuid.NewString()),
		owner:    owner,
		entries:  c.Sorted(),
		pageSize: c.pageSize,
		reqs:     make(chan navRequest),
		done:     make(chan struct{}),
	}
	s.lastUsed = c.clock.Now()

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	go s.loop()
	metrics.LeaderboardSessions.Inc()
	log.Debug().Str("session", string(s.id)).Str("owner", owner.String()).Int("entries", len(s.entries)).Msg("leaderboard session opened")
	return s.id, s.view(0)
}

// Bind associates the message displaying the session so reactions on it are
// routed to the session.
func (c *Controller) Bind(id SessionID, message snowflake.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.message != 0 {
		delete(c.byMessage, s.message)
	}
	s.message = message
	c.byMessage[message] = id
	return nil
}

// SessionForMessage returns the session bound to message.
func (c *Controller) SessionForMessage(message snowflake.ID) (SessionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byMessage[message]
	return id, ok
}

// Navigate moves the session one page in dir on behalf of actor. Requests
// from anyone but the owner, and steps past either end, leave the page as it
// is and report moved=false.
func (c *Controller) Navigate(ctx context.Context, id SessionID, dir Direction, actor snowflake.ID) (PageView, bool, error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if ok {
		s.lastUsed = c.clock.Now()
	}
	c.mu.Unlock()
	if !ok {
		return PageView{}, false, ErrSessionNotFound
	}

	req := navRequest{dir: dir, actor: actor, reply: make(chan navResult, 1)}
	select {
	case s.reqs <- req:
	case <-s.done:
		return PageView{}, false, ErrSessionNotFound
	case <-ctx.Done():
		return PageView{}, false, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.view, res.moved, nil
	case <-ctx.Done():
		return PageView{}, false, ctx.Err()
	}
}

// HandleReaction routes a navigation reaction on a bound message. Adding and
// removing the reaction both count as a step. Other emoji are ignored.
func (c *Controller) HandleReaction(ctx context.Context, ev domain.ReactionEvent) (PageView, bool, error) {
	dir, ok := DirectionForEmoji(ev.Emoji)
	if !ok {
		return PageView{}, false, nil
	}
	id, ok := c.SessionForMessage(ev.MessageID)
	if !ok {
		return PageView{}, false, ErrSessionNotFound
	}
	return c.Navigate(ctx, id, dir, ev.UserID)
}

// Close ends the session.
func (c *Controller) Close(id SessionID) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if ok {
		c.removeLocked(s)
	}
	c.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// CloseMessage ends the session bound to message, reporting whether one was.
func (c *Controller) CloseMessage(message snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byMessage[message]
	if !ok {
		return false
	}
	c.removeLocked(c.sessions[id])
	return true
}

// Len returns the number of open sessions.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ExpireIdle closes every session idle for at least the TTL and returns how
// many were closed.
func (c *Controller) ExpireIdle() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sessions {
		if now.Sub(s.lastUsed) >= c.ttl {
			c.removeLocked(s)
			n++
		}
	}
	if n > 0 {
		log.Debug().Int("expired", n).Msg("leaderboard sessions expired")
	}
	return n
}

// Run expires idle sessions every half TTL until ctx is done, then closes
// whatever is still open.
func (c *Controller) Run(ctx context.Context) {
	t := c.clock.NewTicker(c.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.closeAll()
			return
		case <-t.Chan():
			c.ExpireIdle()
		}
	}
}

func (c *Controller) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		c.removeLocked(s)
	}
}

// removeLocked drops s from the registries and stops its goroutine.
// Callers hold c.mu.
func (c *Controller) removeLocked(s *session) {
	if s == nil {
		return
	}
	delete(c.sessions, s.id)
	if s.message != 0 {
		delete(c.byMessage, s.message)
	}
	close(s.done)
	metrics.LeaderboardSessions.Dec()
}

type navRequest struct {
	dir   Direction
	actor snowflake.ID
	reply chan navResult
}

type navResult struct {
	view  PageView
	moved bool
}

// session is the state of one open view. page is only touched by loop;
// message and lastUsed are guarded by the controller mutex.
type session struct {
	id       SessionID
	owner    snowflake.ID
	entries  []domain.LeaderboardEntry
	pageSize int
	page     int

	message  snowflake.ID
	lastUsed time.Time

	reqs chan navRequest
	done chan struct{}
}

func (s *session) loop() {
	for {
		select {
		case <-s.done:
			return
		case r := <-s.reqs:
			r.reply <- s.apply(r)
		}
	}
}

func (s *session) apply(r navRequest) navResult {
	if r.actor != s.owner {
		return navResult{view: s.view(s.page)}
	}
	next := s.page + 1
	if r.dir == Previous {
		next = s.page - 1
	}
	if next < 0 || next >= pageCount(len(s.entries), s.pageSize) {
		return navResult{view: s.view(s.page)}
	}
	s.page = next
	return navResult{view: s.view(next), moved: true}
}

func (s *session) view(p int) PageView {
	return PageView{
		Session:   s.id,
		Owner:     s.owner,
		Page:      p,
		PageCount: pageCount(len(s.entries), s.pageSize),
		PageSize:  s.pageSize,
		Total:     len(s.entries),
		Entries:   pageOf(s.entries, p, s.pageSize),
	}
}

// Page returns page p of the live ranking without opening a session. Pages
// are 0-based; negative pages read as page 0 and pages past the end come
// back empty.
func (c *Controller) Page(p int) PageView {
	p = max(p, 0)
	entries := c.Sorted()
	return PageView{
		Page:      p,
		PageCount: pageCount(len(entries), c.pageSize),
		PageSize:  c.pageSize,
		Total:     len(entries),
		Entries:   pageOf(entries, p, c.pageSize),
	}
}
