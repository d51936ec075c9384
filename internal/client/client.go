// Package client implements a session with a park server: it dials, runs the
// receive loop, answers pings, correlates auth and server-info requests with
// their responses, and publishes session events on the bus.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/metrics"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/roster"
	"github.com/parklink-project/parklink/internal/text"
	"github.com/parklink-project/parklink/internal/util"
	"github.com/parklink-project/parklink/internal/waiter"
)

const readBufferSize = 64 * 1024

// AuthResult is the server's answer to an Authenticate call. A status other
// than protocol.AuthOK is a rejection, not an error.
type AuthResult struct {
	Status   protocol.AuthStatus `json:"status"`
	PlayerID uint8               `json:"player_id"`
}

// Client is a single session. It is not reusable: once disconnected or
// failed, create a new one.
type Client struct {
	cfg    config.ClientConfig
	bus    *events.EventBus
	parser *protocol.Parser
	logger zerolog.Logger
	id     string

	state     atomic.Int32
	authState atomic.Int32

	// Set by Connect before the state becomes Connected.
	conn   net.Conn
	reader *bufio.Reader
	remote atomic.Pointer[string]

	writeMu sync.Mutex

	roster     *roster.Roster
	lastPing   atomic.Int64
	reason     atomic.Pointer[string]
	username   atomic.Pointer[string]
	playerID   atomic.Uint32
	authStatus atomic.Uint32

	authReq atomic.Pointer[waiter.Request[AuthResult]]
	infoReq atomic.Pointer[waiter.Request[string]]

	sessionCtx    context.Context
	cancelSession context.CancelFunc
	closeOnce     sync.Once
	loopDone      chan struct{}
}

// New creates an idle client. bus may be nil, in which case no events are
// published.
func New(cfg config.ClientConfig, bus *events.EventBus) *Client {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		cfg:           cfg,
		bus:           bus,
		parser:        protocol.NewParser(),
		logger:        util.SessionLogger("client", id),
		id:            id,
		roster:        roster.New(),
		sessionCtx:    ctx,
		cancelSession: cancel,
		loopDone:      make(chan struct{}),
	}
}

// Connect dials host:port and starts the receive loop. It may only be called
// once per client.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c.logger.Info().Str("addr", addr).Msg("connecting")

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateFailed))
		c.cancelSession()
		close(c.loopDone)
		return &TransportError{Op: "dial", Addr: addr, Err: err}
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			c.logger.Debug().Err(err).Msg("failed to set TCP_NODELAY")
		}
	}

	remote := conn.RemoteAddr().String()
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, readBufferSize)
	c.remote.Store(&remote)
	c.touch()

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		// Closed while dialing.
		conn.Close()
		close(c.loopDone)
		return ErrDisconnected
	}

	c.logger.Info().Str("remote", remote).Msg("connected")
	c.emit(events.EventConnected, events.ConnectedPayload{SessionID: c.id, Remote: remote})

	go c.receiveLoop()
	return nil
}

// Authenticate sends the player's credentials and waits for the verdict.
// A rejected login returns a result with a non-OK status and a nil error;
// the caller may try again.
func (c *Client) Authenticate(ctx context.Context, username, password string) (AuthResult, error) {
	if !c.Connected() {
		return AuthResult{}, ErrNotConnected
	}
	if c.AuthState() == Authenticated {
		return AuthResult{}, ErrAlreadyAuthenticated
	}
	if err := protocol.CheckNullString("username", username); err != nil {
		return AuthResult{}, err
	}
	if err := protocol.CheckNullString("password", password); err != nil {
		return AuthResult{}, err
	}

	req := waiter.NewRequest[AuthResult]()
	if !c.authReq.CompareAndSwap(nil, req) {
		return AuthResult{}, ErrRequestPending
	}
	defer c.authReq.CompareAndSwap(req, nil)

	c.authState.Store(int32(AuthPending))
	c.username.Store(&username)

	start := time.Now()
	payload := protocol.BuildAuth(c.cfg.NetworkVersion, username, password)
	if err := c.send(protocol.KindAuth, payload); err != nil {
		c.authState.CompareAndSwap(int32(AuthPending), int32(AuthUnauthenticated))
		return AuthResult{}, err
	}

	result, err := await(ctx, c, req)
	observeRequest("auth", start, err)
	if err != nil {
		c.authState.CompareAndSwap(int32(AuthPending), int32(AuthUnauthenticated))
		c.logger.Warn().Err(err).Str("username", username).Msg("authentication did not complete")
		return AuthResult{}, err
	}

	return result, nil
}

// RequestServerInfo asks the server to describe itself and returns the JSON
// document it answers with. See protocol.ParseServerInfo.
func (c *Client) RequestServerInfo(ctx context.Context) (string, error) {
	if !c.Connected() {
		return "", ErrNotConnected
	}

	req := waiter.NewRequest[string]()
	if !c.infoReq.CompareAndSwap(nil, req) {
		return "", ErrRequestPending
	}
	defer c.infoReq.CompareAndSwap(req, nil)

	start := time.Now()
	if err := c.send(protocol.KindServerInfo, protocol.BuildServerInfoRequest()); err != nil {
		return "", err
	}

	doc, err := await(ctx, c, req)
	observeRequest("server_info", start, err)
	return doc, err
}

// SendChat sends a chat line. Delivery is not acknowledged. Text with a NUL
// byte is refused with protocol.ErrEmbeddedNull.
func (c *Client) SendChat(message string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := protocol.CheckNullString("message", message); err != nil {
		return err
	}
	return c.send(protocol.KindChat, protocol.BuildChat(message))
}

// Close ends the session. It is safe to call more than once and from any
// goroutine, including event handlers.
func (c *Client) Close() error {
	for {
		switch c.State() {
		case StateIdle:
			if c.state.CompareAndSwap(int32(StateIdle), int32(StateDisconnected)) {
				c.cancelSession()
				close(c.loopDone)
				return nil
			}
		case StateConnecting:
			// Connect notices and cleans up after the dial.
			if c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected)) {
				c.cancelSession()
				return nil
			}
		case StateConnected:
			c.disconnect(CauseClosed, nil)
			return nil
		default:
			return nil
		}
	}
}

// Done is closed once the receive loop has exited, or immediately after a
// failed dial.
func (c *Client) Done() <-chan struct{} {
	return c.loopDone
}

// SessionDone is closed as soon as the session ends.
func (c *Client) SessionDone() <-chan struct{} {
	return c.sessionCtx.Done()
}

// State returns the lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether the session is live.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// AuthState returns the authentication state.
func (c *Client) AuthState() AuthState {
	return AuthState(c.authState.Load())
}

// AuthStatus returns the status of the last auth response received.
func (c *Client) AuthStatus() protocol.AuthStatus {
	return protocol.AuthStatus(c.authStatus.Load())
}

// PlayerID returns the id the server assigned on successful authentication.
func (c *Client) PlayerID() uint8 {
	return uint8(c.playerID.Load())
}

// Username returns the name last sent in Authenticate.
func (c *Client) Username() string {
	if u := c.username.Load(); u != nil {
		return *u
	}
	return ""
}

// Players returns a copy of the current roster, or nil before the first
// player list arrives.
func (c *Client) Players() []protocol.Player {
	players, _ := c.roster.Snapshot()
	return players
}

// DisconnectReason returns the message the server sent before dropping the
// session, or "".
func (c *Client) DisconnectReason() string {
	if r := c.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// LastPing returns when the server last pinged, or when the connection was
// established if it has not pinged yet.
func (c *Client) LastPing() time.Time {
	ns := c.lastPing.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SessionID returns the random identifier of this session.
func (c *Client) SessionID() string {
	return c.id
}

// RemoteAddr returns the server's address once connected.
func (c *Client) RemoteAddr() string {
	if r := c.remote.Load(); r != nil {
		return *r
	}
	return ""
}

// receiveLoop is the only reader of the connection. It exits once the
// session is over.
func (c *Client) receiveLoop() {
	defer close(c.loopDone)

	for c.Connected() {
		if c.livenessExpired() {
			c.disconnect(CauseLiveness, ErrLivenessTimeout)
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval()))
		if _, err := c.reader.Peek(1); err != nil {
			if isTimeout(err) {
				continue
			}
			c.disconnect(CauseTransport, c.readError(err))
			return
		}

		// A frame has started. Give it until the liveness expiry to finish.
		c.conn.SetReadDeadline(c.livenessDeadline())
		payload, err := protocol.ReadFrame(c.reader)
		if err != nil {
			if isTimeout(err) {
				c.disconnect(CauseLiveness, ErrLivenessTimeout)
			} else {
				c.disconnect(CauseTransport, c.readError(err))
			}
			return
		}

		c.handleFrame(payload)
	}
}

func (c *Client) readError(err error) error {
	if errors.Is(err, net.ErrClosed) && c.State() == StateDisconnected {
		return nil
	}
	return &TransportError{Op: "read", Addr: c.RemoteAddr(), Err: err}
}

// handleFrame decodes one payload and dispatches it. Decode failures and
// handler panics are logged and dropped so the loop keeps running.
func (c *Client) handleFrame(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("frame handler panicked")
		}
	}()

	pkt, err := c.parser.Parse(payload)
	if err != nil {
		metrics.DecodeErrors.Inc()
		c.logger.Debug().Err(err).Int("size", len(payload)).Msg("dropping undecodable frame")
		return
	}

	switch p := pkt.(type) {
	case *protocol.Ping:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		c.handlePing()
	case *protocol.AuthResponse:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		c.handleAuth(p)
	case *protocol.Chat:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		c.emit(events.EventChatMessage, events.ChatMessagePayload{
			SessionID: c.id,
			Message:   text.New(p.Message),
		})
	case *protocol.PlayerList:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		c.handlePlayerList(p)
	case *protocol.ServerInfoResponse:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		if req := c.infoReq.Load(); req != nil {
			req.Resolve(p.JSON)
		} else {
			c.logger.Debug().Msg("unsolicited server info ignored")
		}
	case *protocol.DisconnectMessage:
		metrics.FramesReceived.WithLabelValues(p.Kind().String()).Inc()
		reason := p.Reason
		c.reason.CompareAndSwap(nil, &reason)
		c.logger.Info().Str("reason", reason).Msg("server sent disconnect message")
		c.disconnect(CauseServer, nil)
	default:
		metrics.FramesReceived.WithLabelValues("unhandled").Inc()
		c.logger.Trace().Stringer("kind", pkt.Kind()).Msg("ignoring unhandled packet")
	}
}

func (c *Client) handlePing() {
	c.touch()
	if err := c.send(protocol.KindPing, protocol.BuildPing()); err != nil {
		c.logger.Debug().Err(err).Msg("failed to answer ping")
	}
}

// handleAuth applies every auth response, solicited or not, then wakes a
// pending Authenticate.
func (c *Client) handleAuth(p *protocol.AuthResponse) {
	c.authStatus.Store(uint32(p.Status))
	metrics.AuthResults.WithLabelValues(p.Status.String()).Inc()

	if p.Status == protocol.AuthOK {
		c.playerID.Store(uint32(p.PlayerID))
		c.authState.Store(int32(Authenticated))
		c.logger.Info().Uint8("player_id", p.PlayerID).Msg("authenticated")
	} else {
		c.authState.Store(int32(AuthFailed))
		c.logger.Warn().Stringer("status", p.Status).Msg("authentication rejected")
	}

	if req := c.authReq.Load(); req != nil {
		req.Resolve(AuthResult{Status: p.Status, PlayerID: p.PlayerID})
	}

	c.emit(events.EventAuthenticated, events.AuthenticatedPayload{
		SessionID: c.id,
		Status:    p.Status,
		PlayerID:  p.PlayerID,
		Username:  c.Username(),
	})
}

// handlePlayerList replaces the roster and publishes the list, then every
// departure, then every arrival.
func (c *Client) handlePlayerList(p *protocol.PlayerList) {
	change := c.roster.Replace(p.Players)
	metrics.RosterPlayers.Set(float64(len(change.Players)))

	c.emit(events.EventPlayerListUpdated, events.PlayerListPayload{
		SessionID: c.id,
		Players:   change.Players,
	})
	for _, pl := range change.Left {
		c.emit(events.EventPlayerLeft, events.PlayerPayload{SessionID: c.id, Player: pl})
	}
	for _, pl := range change.Joined {
		c.emit(events.EventPlayerJoined, events.PlayerPayload{SessionID: c.id, Player: pl})
	}
}

// send writes one frame. A transport failure ends the session.
func (c *Client) send(kind protocol.Kind, payload []byte) error {
	err := c.writeFrame(payload)
	if err == nil {
		metrics.FramesSent.WithLabelValues(kind.String()).Inc()
		return nil
	}
	if errors.Is(err, protocol.ErrFrameTooLarge) {
		return err
	}

	terr := &TransportError{Op: "write", Addr: c.RemoteAddr(), Err: err}
	c.disconnect(CauseTransport, terr)
	return terr
}

func (c *Client) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout())); err != nil {
		return err
	}
	return protocol.WriteFrame(c.conn, payload)
}

// disconnect ends the session exactly once, whichever goroutine gets here
// first.
func (c *Client) disconnect(cause string, err error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.cancelSession()
		c.conn.Close()

		reason := c.DisconnectReason()
		metrics.Disconnects.WithLabelValues(cause).Inc()

		evt := c.logger.Info()
		if err != nil {
			evt = c.logger.Warn().Err(err)
		}
		evt.Str("cause", cause).Str("reason", reason).Msg("disconnected")

		c.emit(events.EventDisconnected, events.DisconnectedPayload{
			SessionID: c.id,
			Reason:    reason,
			Cause:     cause,
			Err:       err,
		})
	})
}

func (c *Client) touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

func (c *Client) livenessDeadline() time.Time {
	return time.Unix(0, c.lastPing.Load()).Add(c.cfg.LivenessTimeout())
}

func (c *Client) livenessExpired() bool {
	return !time.Now().Before(c.livenessDeadline())
}

func (c *Client) emit(eventType events.EventType, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.EmitSync(context.Background(), events.Event{
		Type:    eventType,
		Source:  "client",
		Payload: payload,
	})
}

// await blocks on req until it resolves, the request timeout elapses, ctx is
// done or the session ends.
func await[T any](ctx context.Context, c *Client, req *waiter.Request[T]) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.sessionCtx, cancel)
	defer stop()

	v, err := req.Wait(ctx, c.cfg.RequestTimeout())
	if err != nil && c.sessionCtx.Err() != nil {
		return v, ErrDisconnected
	}
	return v, err
}

func observeRequest(name string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	metrics.RequestDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// String summarises the session for logs and the CLI.
func (c *Client) String() string {
	return fmt.Sprintf("session %s [%s, %s] %s", c.id, c.State(), c.AuthState(), c.RemoteAddr())
}
