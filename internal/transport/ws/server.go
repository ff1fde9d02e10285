package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dr-vortex/annihilation/internal/auth"
	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/inventory"
	"github.com/dr-vortex/annihilation/internal/sim/level"
)

const (
	helloTimeout  = 5 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 5 * time.Second
	actionTimeout = 5 * time.Second
	maxEventQueue = 4096
	sessionQueue  = 64
)

// Listener receives every broadcast the server fans out to sessions. It is
// called from the broadcast goroutine and must not block.
type Listener interface {
	Broadcast(tick uint64, events []protocol.Event, change snapshot.Change)
}

// ActionRecorder keeps an audit trail of submitted actions.
type ActionRecorder interface {
	WriteAction(e persistlog.ActionEntry) error
}

type Options struct {
	ActionsPerSecond int
	ActionBurst      int
	MaxSessions      int
	Params           protocol.LevelParams
	Catalogs         protocol.CatalogDigests
	// Auth nil means HELLO may name its player id.
	Auth    *auth.Issuer
	Actions ActionRecorder
}

// Server carries player sessions for one level loop: ACTION frames go to
// the loop, EVENT and DIFF frames fan out on every broadcast snapshot.
type Server struct {
	loop    *level.Loop
	levelID string
	opts    Options
	log     *slog.Logger

	upgrader websocket.Upgrader

	mu        sync.Mutex
	sessions  map[*session]struct{}
	events    []protocol.Event
	prev      *snapshot.Level
	listeners []Listener

	sessionCount atomic.Int32
}

type session struct {
	id       string
	playerID string
	encoding string
	out      chan frame
	limiter  *rate.Limiter
	// resync is set when a frame was dropped; the next DIFF is a full one.
	resync atomic.Bool
}

func NewServer(loop *level.Loop, levelID string, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ActionsPerSecond <= 0 {
		opts.ActionsPerSecond = 20
	}
	if opts.ActionBurst <= 0 {
		opts.ActionBurst = opts.ActionsPerSecond
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	opts.Params.ActionsPerSecond = opts.ActionsPerSecond
	return &Server{
		loop:    loop,
		levelID: levelID,
		opts:    opts,
		log:     logger.With("component", "ws", "level_id", levelID),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Origins are enforced by the CORS layer in front of the mux.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: map[*session]struct{}{},
	}
}

// AddListener registers l for every later broadcast.
func (s *Server) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// OnEvent buffers a level event for the next broadcast. Subscribe it to the
// level before the loop starts.
func (s *Server) OnEvent(ev level.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxEventQueue {
		s.events = s.events[1:]
	}
	s.events = append(s.events, ev.Wire())
}

// Sessions is the number of connected players.
func (s *Server) Sessions() int { return int(s.sessionCount.Load()) }

// Run fans out every snapshot from snaps until ctx ends or snaps closes.
func (s *Server) Run(ctx context.Context, snaps <-chan *snapshot.Level) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			s.broadcast(snap)
		}
	}
}

func (s *Server) broadcast(snap *snapshot.Level) {
	s.mu.Lock()
	events := s.events
	s.events = nil
	change := snapshot.Diff(s.prev, snap)
	s.prev = snap
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.Broadcast(snap.Tick, events, change)
	}

	var evFrames *frameSet
	if len(events) > 0 {
		evFrames = newFrameSet(protocol.EventMsg{Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Events: events})
	}
	diffFrames := newFrameSet(protocol.NewDiff(snap.Tick, change))
	var fullFrames *frameSet

	for _, sess := range sessions {
		if evFrames != nil {
			if f, err := evFrames.get(sess.encoding); err == nil {
				if sendLatest(sess.out, f) {
					sess.resync.Store(true)
				}
			}
		}
		set := diffFrames
		full := sess.resync.Load()
		if full {
			if fullFrames == nil {
				msg := protocol.NewDiff(snap.Tick, snapshot.Diff(nil, snap))
				msg.Full = true
				fullFrames = newFrameSet(msg)
			}
			set = fullFrames
		} else if change.Empty() {
			continue
		}
		f, err := set.get(sess.encoding)
		if err != nil {
			s.log.Warn("encode diff", "err", err)
			continue
		}
		select {
		case sess.out <- f:
			if full {
				sess.resync.Store(false)
			}
		default:
			sess.resync.Store(true)
		}
	}
}

// Handler serves the websocket endpoint.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if int(s.sessionCount.Add(1)) > s.opts.MaxSessions {
			s.sessionCount.Add(-1)
			closeWith(conn, protocol.EncodingJSON, protocol.ErrRateLimit, "server full")
			return
		}
		defer s.sessionCount.Add(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		log := s.log.With("session_id", sess.id, "player_id", sess.playerID)
		log.Info("session open", "encoding", sess.encoding)

		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess)
			s.mu.Unlock()
			log.Info("session closed")
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(f.kind, f.data); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			res := s.handleFrame(ctx, sess, msg)
			if res == nil {
				continue
			}
			f, err := encode(sess.encoding, res)
			if err != nil {
				continue
			}
			select {
			case sess.out <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, protocol.EncodingJSON, protocol.ErrBadRequest, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, protocol.EncodingJSON, protocol.ErrVersion,
			fmt.Sprintf("protocol_version %q not supported, server speaks %q", base.ProtocolVersion, protocol.Version))
		return nil
	}
	if err := protocol.ValidateHello(msg); err != nil {
		closeWith(conn, protocol.EncodingJSON, protocol.ErrBadRequest, err.Error())
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, protocol.EncodingJSON, protocol.ErrBadRequest, err.Error())
		return nil
	}
	encoding := hello.Encoding
	if encoding == "" {
		encoding = protocol.EncodingJSON
	}

	playerID, name, err := s.identify(hello)
	if err != nil {
		closeWith(conn, encoding, protocol.ErrUnauthorized, err.Error())
		return nil
	}

	var snap *snapshot.Level
	err = s.loop.Do(ctx, func(l *level.Level) error {
		if _, err := l.Player(playerID); errors.Is(err, level.ErrNotFound) {
			if _, err := l.AddPlayer(playerID, name); err != nil {
				return err
			}
			if err := l.GrantStarterKit(playerID); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		snap = l.Snapshot().Public()
		return nil
	})
	if err != nil {
		s.log.Warn("join failed", "player_id", playerID, "err", err)
		closeWith(conn, encoding, protocol.ErrInternal, "join failed")
		return nil
	}

	sess := &session{
		id:       uuid.NewString(),
		playerID: playerID,
		encoding: encoding,
		out:      make(chan frame, sessionQueue),
		limiter:  rate.NewLimiter(rate.Limit(s.opts.ActionsPerSecond), s.opts.ActionBurst),
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		PlayerID:        playerID,
		Encoding:        encoding,
		Params:          s.opts.Params,
		Catalogs:        s.opts.Catalogs,
		Level:           snap,
	}
	f, err := encode(encoding, welcome)
	if err != nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(f.kind, f.data); err != nil {
		return nil
	}
	return sess
}

// playerIDPattern bounds ids a client may pick for itself when auth is off.
var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// identify resolves the player a HELLO speaks for.
func (s *Server) identify(hello protocol.HelloMsg) (playerID, name string, err error) {
	name = strings.TrimSpace(hello.Name)
	if s.opts.Auth.Enabled() {
		if hello.Auth == nil || strings.TrimSpace(hello.Auth.Token) == "" {
			return "", "", errors.New("token required")
		}
		claims, err := s.opts.Auth.Validate(strings.TrimSpace(hello.Auth.Token))
		if err != nil {
			return "", "", err
		}
		if claims.LevelID != "" && claims.LevelID != s.levelID {
			return "", "", errors.New("token issued for another level")
		}
		if name == "" {
			name = claims.Name
		}
		return claims.PlayerID, nameOr(name, claims.PlayerID), nil
	}
	playerID = strings.TrimSpace(hello.PlayerID)
	if playerID == "" {
		playerID = "player-" + uuid.NewString()
	}
	if !playerIDPattern.MatchString(playerID) {
		return "", "", fmt.Errorf("invalid player id %q", playerID)
	}
	return playerID, nameOr(name, playerID), nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// handleFrame processes one client frame and returns the RESULT to send, or
// nil for frames that get no reply.
func (s *Server) handleFrame(ctx context.Context, sess *session, msg []byte) *protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAction {
		return nil
	}
	var act protocol.ActionMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		r := protocol.NewResult(0, false, protocol.ErrBadRequest, err.Error(), 0)
		return &r
	}
	reply := func(ok bool, code, text string) *protocol.ResultMsg {
		r := protocol.NewResult(act.Seq, ok, code, text, s.loop.Tick())
		return &r
	}
	if act.ProtocolVersion != protocol.Version {
		return reply(false, protocol.ErrVersion, "protocol_version mismatch")
	}
	if err := protocol.ValidateAction(msg); err != nil {
		return reply(false, protocol.ErrBadRequest, err.Error())
	}
	if !sess.limiter.Allow() {
		return reply(false, protocol.ErrRateLimit, "slow down")
	}
	a, err := level.DecodeAction(act.Kind, act.Payload)
	if err != nil {
		return reply(false, protocol.ErrBadRequest, err.Error())
	}

	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	ok, tick, err := s.loop.SubmitAt(actx, sess.playerID, a)
	code, text := "", ""
	switch {
	case err != nil:
		code, text = ErrorCode(err), err.Error()
	case !ok:
		code = protocol.ErrRejected
	}
	if s.opts.Actions != nil {
		_ = s.opts.Actions.WriteAction(persistlog.ActionEntry{
			Tick:     tick,
			PlayerID: sess.playerID,
			Kind:     act.Kind,
			Payload:  act.Payload,
			OK:       ok && err == nil,
			Code:     code,
			Error:    text,
		})
	}
	return reply(ok && err == nil, code, text)
}

// ErrorCode maps a structural error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, level.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, level.ErrWrongOwner):
		return protocol.ErrWrongOwner
	case errors.Is(err, level.ErrInvalidSelector),
		errors.Is(err, level.ErrInvalidOperation),
		errors.Is(err, level.ErrUnknownAction),
		errors.Is(err, inventory.ErrUnknownItem),
		errors.Is(err, inventory.ErrInsufficientResources):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func closeWith(conn *websocket.Conn, encoding, code, text string) {
	f, err := encode(encoding, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         text,
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(f.kind, f.data)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}
