package ws

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"teams-chat/internal/auth"
	"teams-chat/internal/bus"
	"teams-chat/internal/observability"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxFrameSize    = 16 << 20
	sinkBuffer      = 256
	teardownTimeout = 5 * time.Second
)

// Frame handling outcomes, used as a metric label.
const (
	outcomeOK        = "ok"
	outcomeDropped   = "dropped"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
	outcomeMalformed = "malformed"
	outcomePanic     = "panic"
)

type state int32

const (
	stateConnecting state = iota
	stateAuthorizing
	stateOpen
	stateClosing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthorizing:
		return "authorizing"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// channel is the variant specific part of a session: which topics it joins,
// what it announces, how it handles client frames and which bus events it forwards.
type channel interface {
	kind() string
	resource() string
	topics() []string
	// countsPresence reports whether the connection holds a presence reference.
	countsPresence() bool
	open(ctx context.Context, s *session)
	handle(ctx context.Context, s *session, f inbound) string
	accept(s *session, ev bus.Event) bool
	close(ctx context.Context, s *session)
}

// session is one websocket connection. The read loop processes client frames
// in order; the write pump is the only writer to the socket.
type session struct {
	srv    *Server
	ch     channel
	user   auth.Identity
	info   ConnInfo
	conn   *websocket.Conn
	events chan bus.Event
	subs   []bus.Subscription
	state  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newSession(srv *Server) *session {
	s := &session{srv: srv, events: make(chan bus.Event, sinkBuffer)}
	s.setState(stateConnecting)
	return s
}

func (s *session) setState(next state) {
	prev := state(s.state.Swap(int32(next)))
	if glog.V(2) {
		glog.Infof("ws session %s: %s -> %s", s.info.ConnID, prev, next)
	}
}

func (s *session) currentState() state {
	return state(s.state.Load())
}

func (s *session) subscribe() {
	for _, topic := range s.ch.topics() {
		s.subs = append(s.subs, s.srv.bus.Subscribe(topic, s.events))
	}
}

func (s *session) unsubscribe() {
	for _, sub := range s.subs {
		s.srv.bus.Unsubscribe(sub)
	}
	s.subs = nil
}

// run drives an upgraded connection until it closes.
func (s *session) run(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.setState(stateOpen)

	if s.ch.countsPresence() {
		if err := s.srv.presence.Connect(s.ctx, s.user.UserID); err != nil {
			glog.Errorf("ws %s: presence connect user=%d: %v", s.info.ConnID, s.user.UserID, err)
		}
	}
	s.ch.open(s.ctx, s)

	kind := s.ch.kind()
	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	_ = observability.PublishEvent(s.ctx, observability.WSRoutingKey(kind), s.info.event("ws_connect", "").Envelope(), s.info.headers())
	glog.Infof("ws %s: user %d connected to %s %s", s.info.ConnID, s.user.UserID, kind, s.ch.resource())

	go s.writePump()
	s.readPump()
}

func (s *session) readPump() {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.reportError(err)
			}
			s.teardown(err.Error())
			return
		}
		s.dispatch(data)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if !s.ch.accept(s, ev) {
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, ev.Frame); err != nil {
				s.reportError(err)
				s.teardown(err.Error())
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.reportError(err)
				s.teardown(err.Error())
				return
			}
		}
	}
}

// dispatch handles one client frame. A failing frame never takes the session down.
func (s *session) dispatch(data []byte) {
	kind := s.ch.kind()
	label := "unknown"
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("ws %s: panic handling %s frame: %v", s.info.ConnID, label, r)
			observability.IncWSFrame(kind, label, outcomePanic)
		}
	}()

	f, err := parseInbound(data)
	if err != nil {
		glog.Warningf("ws %s: malformed frame: %v", s.info.ConnID, err)
		observability.IncWSFrame(kind, label, outcomeMalformed)
		return
	}
	label = frameLabel(f.Type)

	outcome := s.ch.handle(s.ctx, s, f)
	if outcome == outcomeIgnored {
		glog.V(1).Infof("ws %s: ignoring frame type %q", s.info.ConnID, f.Type)
	}
	observability.IncWSFrame(kind, label, outcome)
}

// publish encodes frame once and hands it to the bus.
func (s *session) publish(ctx context.Context, topic, eventType string, target int, frame interface{}) error {
	ev, err := bus.NewEvent(topic, eventType, s.user.UserID, frame)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", eventType, err)
	}
	ev.Target = target
	if err := s.srv.bus.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}
	return nil
}

func (s *session) reportError(err error) {
	if s.currentState() >= stateClosing {
		return
	}
	kind := s.ch.kind()
	glog.Warningf("ws %s: %s connection error: %v", s.info.ConnID, kind, err)
	observability.IncWSEvent(kind, "ws_error")
	_ = observability.PublishEvent(context.Background(), observability.WSRoutingKey(kind), s.info.event("ws_error", err.Error()).Envelope(), s.info.headers())
}

// teardown releases everything the session holds. It runs once, whichever pump
// notices the closed connection first.
func (s *session) teardown(reason string) {
	s.once.Do(func() {
		s.setState(stateClosing)
		s.unsubscribe()
		s.cancel()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), teardownTimeout)
		defer cancel()

		s.ch.close(ctx, s)
		if s.ch.countsPresence() {
			if _, err := s.srv.presence.Disconnect(ctx, s.user.UserID); err != nil {
				glog.Errorf("ws %s: presence disconnect user=%d: %v", s.info.ConnID, s.user.UserID, err)
			}
		}

		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()

		kind := s.ch.kind()
		observability.DecWSActive(kind)
		observability.IncWSEvent(kind, "ws_disconnect")
		_ = observability.PublishEvent(ctx, observability.WSRoutingKey(kind), s.info.event("ws_disconnect", reason).Envelope(), s.info.headers())
		glog.Infof("ws %s: user %d left %s %s: %s", s.info.ConnID, s.user.UserID, kind, s.ch.resource(), reason)
		s.setState(stateClosed)
	})
}
