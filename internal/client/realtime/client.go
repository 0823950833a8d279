// Package realtime subscribes to database row changes over the backend's
// Phoenix-channel websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Status is a channel lifecycle notification.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

var ErrJoinTimeout = errors.New("realtime: no join reply")

// Subscription is an open channel.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// TokenSource returns the bearer sent with the join.
type TokenSource func(ctx context.Context) (string, error)

type Options struct {
	// URL is the websocket endpoint, e.g. wss://host/realtime/v1/websocket.
	URL               string
	APIKey            string
	JoinTimeout       time.Duration
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
	Logger            logging.Logger
}

type Client struct {
	opts  Options
	token TokenSource
}

func NewClient(opts Options, token TokenSource) *Client {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 10 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Client{opts: opts, token: token}
}

// Subscribe dials, sends the join and returns. The dial is bounded by
// JoinTimeout. The outcome of the join and
// everything after it arrive through onStatus; row changes arrive through
// onChange. Both run on the channel's own goroutines, one call at a time.
// A terminal status (anything but SUBSCRIBED) closes the channel.
func (c *Client) Subscribe(ctx context.Context, spec ChannelSpec, onChange func(ChangeEvent), onStatus func(Status, error)) (Subscription, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	var token string
	if c.token != nil {
		if token, err = c.token(ctx); err != nil {
			return nil, fmt.Errorf("realtime token: %w", err)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	conn, _, err := c.opts.Dialer.DialContext(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	ch := &Channel{
		conn:     conn,
		topic:    spec.Topic(),
		joinRef:  uuid.NewString(),
		log:      c.opts.Logger.With("topic", spec.Topic()),
		onChange: onChange,
		onStatus: onStatus,
		done:     make(chan struct{}),
		readWait: 2 * c.opts.HeartbeatInterval,
	}

	payload := joinPayload{
		Config:      joinConfig{PostgresChanges: []postgresChange{spec.change()}},
		AccessToken: token,
	}
	if err := ch.send(ch.topic, eventJoin, payload, ch.joinRef); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime join: %w", err)
	}
	ch.log.Debug(ctx, "join sent")

	go ch.readLoop()
	go ch.supervise(c.opts.JoinTimeout, c.opts.HeartbeatInterval)

	return ch, nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.opts.APIKey)
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Channel is one joined topic on its own websocket connection.
type Channel struct {
	conn     *websocket.Conn
	topic    string
	joinRef  string
	log      logging.Logger
	onChange func(ChangeEvent)
	onStatus func(Status, error)
	readWait time.Duration

	writeMu sync.Mutex
	cbMu    sync.Mutex
	mu      sync.Mutex
	closed  bool
	done    chan struct{}
	joined  atomic.Bool
	ref     atomic.Uint64
}

// Unsubscribe leaves the topic and closes the connection. No callback starts
// after it returns; one already running when it is called runs to
// completion. Safe to call more than once and from inside a callback.
func (ch *Channel) Unsubscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	ch.mu.Unlock()

	close(ch.done)

	if deadline, ok := ctx.Deadline(); ok {
		_ = ch.conn.SetWriteDeadline(deadline)
	}
	leaveErr := ch.send(ch.topic, eventLeave, struct{}{}, ch.nextRef())
	ch.writeMu.Lock()
	_ = ch.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ch.writeMu.Unlock()

	ch.log.Debug(ctx, "channel left")
	return errors.Join(leaveErr, ch.conn.Close())
}

func (ch *Channel) readLoop() {
	for {
		_ = ch.conn.SetReadDeadline(time.Now().Add(ch.readWait))

		var msg message
		if err := ch.conn.ReadJSON(&msg); err != nil {
			ch.finish(StatusClosed, fmt.Errorf("realtime read: %w", err))
			return
		}
		ch.handle(msg)
	}
}

func (ch *Channel) handle(msg message) {
	ctx := context.Background()

	if msg.Topic == topicPhoenix {
		ch.log.Debug(ctx, "heartbeat reply", "ref", msg.Ref)
		return
	}
	if msg.Topic != ch.topic {
		return
	}

	switch msg.Event {
	case eventReply:
		if msg.Ref != ch.joinRef {
			return
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			ch.finish(StatusChannelError, fmt.Errorf("decode join reply: %w", err))
			return
		}
		if reply.Status != "ok" {
			ch.finish(StatusChannelError, fmt.Errorf("join rejected: %s %s", reply.Status, reply.Response))
			return
		}
		ch.joined.Store(true)
		ch.emit(StatusSubscribed, nil)

	case eventPostgresChanges:
		var p changesPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			ch.log.Warn(ctx, "malformed change event", "error", err)
			return
		}
		ch.change(p.Data)

	case eventSystem:
		var p systemPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Status == "error" {
			ch.finish(StatusChannelError, errors.New(p.Message))
		}

	case eventError:
		ch.finish(StatusChannelError, fmt.Errorf("channel error: %s", msg.Payload))

	case eventClose:
		ch.finish(StatusClosed, nil)
	}
}

func (ch *Channel) supervise(joinTimeout, heartbeat time.Duration) {
	joinTimer := time.NewTimer(joinTimeout)
	defer joinTimer.Stop()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	joinC := joinTimer.C
	for {
		select {
		case <-ch.done:
			return
		case <-joinC:
			joinC = nil
			if !ch.joined.Load() {
				ch.finish(StatusTimedOut, ErrJoinTimeout)
				return
			}
		case <-ticker.C:
			if err := ch.send(topicPhoenix, eventHeartbeat, struct{}{}, ch.nextRef()); err != nil {
				ch.finish(StatusClosed, fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}

// emit reports a non-terminal status unless the channel is closed.
func (ch *Channel) emit(st Status, err error) {
	ch.cbMu.Lock()
	defer ch.cbMu.Unlock()

	if ch.isClosed() {
		return
	}
	ch.onStatus(st, err)
}

// finish closes the channel and reports st, once.
func (ch *Channel) finish(st Status, err error) {
	ch.cbMu.Lock()
	defer ch.cbMu.Unlock()

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()

	close(ch.done)
	_ = ch.conn.Close()

	ch.log.Warn(context.Background(), "channel closed", "status", st, "error", err)
	ch.onStatus(st, err)
}

func (ch *Channel) change(ev ChangeEvent) {
	ch.cbMu.Lock()
	defer ch.cbMu.Unlock()

	if ch.isClosed() {
		return
	}
	ch.onChange(ev)
}

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *Channel) send(topic, event string, payload any, ref string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.conn.WriteJSON(message{Topic: topic, Event: event, Payload: raw, Ref: ref})
}

func (ch *Channel) nextRef() string {
	return strconv.FormatUint(ch.ref.Add(1), 10)
}
