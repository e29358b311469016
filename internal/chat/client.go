package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/pharmacy-storefront/internal/infrastructure/storage"
)

const (
	DefaultAdminID     = "admin"
	DefaultReplayDelay = 300 * time.Millisecond
	DefaultMatchWindow = 2 * time.Minute
	senderTypeUser     = "user"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNotAuthenticated = errors.New("please log in to chat")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// ReconnectPolicy bounds redial attempts. After MaxAttempts consecutive
// failures the client gives up and reports itself offline.
type ReconnectPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Identity resolves the shopper the chat belongs to.
type Identity interface {
	UserID() string
}

type Options struct {
	AdminID     string
	ReplayDelay time.Duration
	// MatchWindow is how far apart a pending echo and the server's copy may
	// be and still be treated as the same message.
	MatchWindow time.Duration
	Reconnect   ReconnectPolicy
	Logger      *zap.Logger
}

// Client is the shopper side of the support chat.
type Client struct {
	dialer   Dialer
	identity Identity
	opts     Options
	logger   *zap.Logger
	history  *storage.Document[[]Message]
	outbox   *storage.Document[[]QueuedMessage]

	writeMu sync.Mutex

	mu        sync.Mutex
	state     State
	offline   bool
	conn      Conn
	messages  []Message
	queue     []QueuedMessage
	loaded    bool
	running   bool
	replaying bool // queue drain in progress after a connect
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(dialer Dialer, identity Identity, kv storage.KV, opts Options) *Client {
	if opts.AdminID == "" {
		opts.AdminID = DefaultAdminID
	}
	if opts.ReplayDelay <= 0 {
		opts.ReplayDelay = DefaultReplayDelay
	}
	if opts.MatchWindow <= 0 {
		opts.MatchWindow = DefaultMatchWindow
	}
	if opts.Reconnect.MaxAttempts <= 0 {
		opts.Reconnect.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		dialer:   dialer,
		identity: identity,
		opts:     opts,
		logger:   opts.Logger,
		history:  storage.NewDocument[[]Message](kv, storage.KeyChatHistory, opts.Logger),
		outbox:   storage.NewDocument[[]QueuedMessage](kv, storage.KeyChatQueue, opts.Logger),
		state:    StateDisconnected,
	}
}

// Load reads history and the outbound queue from storage once. Corrupt
// entries load as empty.
func (c *Client) Load(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.messages, _ = c.history.Load(ctx)
	c.queue, _ = c.outbox.Load(ctx)
	c.loaded = true
}

// Open starts the connection loop. The connection lives until Close, not
// until ctx is done.
func (c *Client) Open(ctx context.Context) error {
	if c.userID() == "" {
		return ErrNotAuthenticated
	}
	c.Load(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.offline = false
	go c.run(loopCtx, c.done)
	return nil
}

// Close tears the connection down and waits for the loop to exit.
func (c *Client) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Retry drops the current connection, resets the reconnect budget and dials again.
func (c *Client) Retry(ctx context.Context) error {
	c.Close()
	return c.Open(ctx)
}

// Reset closes the connection and forgets history and queue, on logout.
func (c *Client) Reset(ctx context.Context) {
	c.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.queue = nil
	c.loaded = true
	if err := c.history.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear chat history", zap.Error(err))
	}
	if err := c.outbox.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear chat queue", zap.Error(err))
	}
}

// Send emits text to the admin when connected, otherwise queues it for the
// next connection. The returned echo carries a temporary id.
func (c *Client) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	userID := c.userID()
	if userID == "" {
		return Message{}, ErrNotAuthenticated
	}
	c.Load(ctx)

	localID := tempIDPrefix + uuid.New().String()
	payload := OutgoingMessage{
		SenderID:   userID,
		ReceiverID: c.opts.AdminID,
		Message:    text,
		SenderType: senderTypeUser,
		LocalID:    localID,
	}
	now := time.Now().UTC()
	echo := Message{
		ID:         localID,
		SenderID:   userID,
		ReceiverID: c.opts.AdminID,
		Message:    text,
		SenderType: senderTypeUser,
		Timestamp:  now,
	}

	// The echo is recorded before the write so a fast server confirmation
	// always finds it. While older messages wait in the queue, new ones join
	// the queue too so the server receives them in send order.
	c.mu.Lock()
	conn := c.conn
	live := c.state == StateConnected && conn != nil && !c.replaying && len(c.queue) == 0
	if !live {
		echo.Status = StatusQueued
		c.messages = append(c.messages, echo)
		c.queue = append(c.queue, QueuedMessage{LocalID: localID, Payload: payload, QueuedAt: now})
		c.saveHistory(ctx)
		c.saveQueue(ctx)
		c.mu.Unlock()
		c.logger.Debug("message queued", zap.String("local_id", localID))
		return echo, nil
	}
	echo.Status = StatusSending
	c.messages = append(c.messages, echo)
	c.saveHistory(ctx)
	c.mu.Unlock()

	if err := c.emit(conn, payload); err != nil {
		c.logger.Warn("send failed, queueing message", zap.Error(err))
		echo.Status = StatusQueued
		c.mu.Lock()
		c.updateStatus(localID, StatusQueued)
		c.queue = append(c.queue, QueuedMessage{LocalID: localID, Payload: payload, QueuedAt: now})
		c.saveHistory(ctx)
		c.saveQueue(ctx)
		c.mu.Unlock()
	}
	return echo, nil
}

func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Days returns the history grouped by local calendar day.
func (c *Client) Days() []Day {
	return GroupByDay(c.Messages(), time.Local)
}

func (c *Client) Queue() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]QueuedMessage(nil), c.queue...)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Offline reports that the reconnect budget ran out. Retry clears it.
func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateDisconnected
		c.conn = nil
		c.mu.Unlock()
		close(done)
	}()

	failures := 0
	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Warn("chat connect failed",
				zap.Int("attempt", failures),
				zap.Int("max_attempts", c.opts.Reconnect.MaxAttempts),
				zap.Error(err),
			)
			if failures >= c.opts.Reconnect.MaxAttempts {
				c.mu.Lock()
				c.offline = true
				c.mu.Unlock()
				c.logger.Warn("chat offline, reconnect budget exhausted")
				return
			}
			if !sleep(ctx, c.opts.Reconnect.Delay) {
				return
			}
			continue
		}

		failures = 0
		err = c.serve(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Info("chat connection lost, reconnecting", zap.Error(err))
		if !sleep(ctx, c.opts.Reconnect.Delay) {
			return
		}
	}
}

// serve joins, starts the queue replay and reads until the connection fails.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	join, err := NewEnvelope(EventJoinUser, JoinUser{UserID: c.userID()})
	if err != nil {
		return err
	}
	if err := c.write(conn, join); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.replaying = len(c.queue) > 0
	replaying := c.replaying
	c.mu.Unlock()
	c.logger.Info("chat connected")

	if replaying {
		replayCtx, cancelReplay := context.WithCancel(ctx)
		replayDone := make(chan struct{})
		go func() {
			defer close(replayDone)
			c.replay(replayCtx, conn)
		}()
		defer func() {
			cancelReplay()
			_ = conn.Close()
			<-replayDone
		}()
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		c.handle(ctx, env)
	}
}

// replay sends the queue in order, one message per ReplayDelay, including
// entries queued while it runs. The sent entries leave the queue only after
// one more delay window has passed without the connection failing.
func (c *Client) replay(ctx context.Context, conn Conn) {
	limiter := rate.NewLimiter(rate.Every(c.opts.ReplayDelay), 1)
	sent := make(map[string]struct{})

	defer func() {
		c.mu.Lock()
		c.replaying = false
		c.mu.Unlock()
	}()

	for {
		q, ok := c.nextUnsent(sent)
		if !ok {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if c.finishReplay(ctx, sent) {
				return
			}
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := c.emit(conn, q.Payload); err != nil {
			c.logger.Warn("queue replay interrupted", zap.String("local_id", q.LocalID), zap.Error(err))
			return
		}
		sent[q.LocalID] = struct{}{}
		c.setStatus(ctx, q.LocalID, StatusSending)
	}
}

// nextUnsent returns the oldest queued entry not yet sent in this replay.
func (c *Client) nextUnsent(sent map[string]struct{}) (QueuedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.queue {
		if _, ok := sent[q.LocalID]; !ok {
			return q, true
		}
	}
	return QueuedMessage{}, false
}

// finishReplay drops the sent entries and ends the replay, unless something
// was queued during the final window.
func (c *Client) finishReplay(ctx context.Context, sent map[string]struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range c.queue {
		if _, ok := sent[q.LocalID]; !ok {
			return false
		}
	}
	c.queue = nil
	c.replaying = false
	c.saveQueue(ctx)
	c.logger.Info("queue replayed", zap.Int("sent", len(sent)))
	return true
}

func (c *Client) handle(ctx context.Context, env Envelope) {
	switch env.Event {
	case EventReceiveDirectMessage, EventMessageSent:
		var in IncomingMessage
		if err := json.Unmarshal(env.Data, &in); err != nil {
			c.logger.Warn("malformed chat message", zap.String("event", env.Event), zap.Error(err))
			return
		}
		c.reconcile(ctx, in)
	default:
		c.logger.Debug("ignoring chat event", zap.String("event", env.Event))
	}
}

// reconcile merges a server message into history: known ids are dropped,
// a matching pending echo is replaced in place, anything else is appended.
func (c *Client) reconcile(ctx context.Context, in IncomingMessage) {
	id := in.serverID()
	if id == "" {
		c.logger.Warn("chat message without id dropped")
		return
	}
	msg := Message{
		ID:         id,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Message:    in.Message,
		SenderType: in.SenderType,
		Timestamp:  in.Timestamp,
		Status:     StatusDelivered,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.messages {
		if m.ID == id {
			return
		}
	}

	idx := c.pendingMatch(in.LocalID, msg)
	if idx < 0 {
		c.messages = append(c.messages, msg)
		c.saveHistory(ctx)
		return
	}

	localID := c.messages[idx].ID
	c.messages[idx] = msg
	c.saveHistory(ctx)

	for i, q := range c.queue {
		if q.LocalID == localID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.saveQueue(ctx)
			break
		}
	}
}

// pendingMatch finds the echo a server message confirms. Callers hold c.mu.
func (c *Client) pendingMatch(localID string, msg Message) int {
	if localID != "" {
		for i, m := range c.messages {
			if m.ID == localID {
				return i
			}
		}
	}
	for i, m := range c.messages {
		if !IsTemporaryID(m.ID) || m.SenderID != msg.SenderID || m.Message != msg.Message {
			continue
		}
		if d := msg.Timestamp.Sub(m.Timestamp); d <= c.opts.MatchWindow && d >= -c.opts.MatchWindow {
			return i
		}
	}
	return -1
}

func (c *Client) emit(conn Conn, payload OutgoingMessage) error {
	env, err := NewEnvelope(EventSendDirectMessage, payload)
	if err != nil {
		return err
	}
	return c.write(conn, env)
}

func (c *Client) write(conn Conn, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Client) setStatus(ctx context.Context, id string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updateStatus(id, status) {
		c.saveHistory(ctx)
	}
}

// updateStatus changes the status of message id. Callers hold c.mu.
func (c *Client) updateStatus(id string, status Status) bool {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Status = status
			return true
		}
	}
	return false
}

func (c *Client) userID() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.UserID()
}

// saveHistory and saveQueue persist under c.mu so each key has one writer.
func (c *Client) saveHistory(ctx context.Context) {
	if err := c.history.Save(context.WithoutCancel(ctx), c.messages); err != nil {
		c.logger.Warn("failed to persist chat history", zap.Error(err))
	}
}

func (c *Client) saveQueue(ctx context.Context) {
	if err := c.outbox.Save(context.WithoutCancel(ctx), c.queue); err != nil {
		c.logger.Warn("failed to persist chat queue", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
