package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kiliankoe/georacer/internal/feed"
	"github.com/kiliankoe/georacer/internal/game"
	"github.com/rs/zerolog/log"
)

// ConnConfig bounds a raw WebSocket connection.
type ConnConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		// guesses carry a whole photo
		MaxMessageSize: 16 << 20,
	}
}

// Socket serves lobbies and the target feed over plain WebSockets speaking JSON messages.
type Socket struct {
	manager  *game.Manager
	feed     *feed.Feed
	config   ConnConfig
	upgrader websocket.Upgrader
}

func NewSocket(manager *game.Manager, f *feed.Feed, cfg ConnConfig) *Socket {
	return &Socket{
		manager: manager,
		feed:    f,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Socket) Mount(r gin.IRoutes) {
	r.GET("/ws/lobbies/:id", s.handleLobby)
	r.GET("/ws/feed", s.handleFeed)
}

// judgeOne runs judge in the background unless a guess from the same connection is still
// being judged, in which case it reports false and drops the guess.
func judgeOne(busy *atomic.Bool, judge func()) bool {
	if !busy.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer busy.Store(false)
		judge()
	}()
	return true
}

// conn is a game.Sink over one WebSocket. gorilla allows a single concurrent writer, so
// messages and pings share mu.
type conn struct {
	ws      *websocket.Conn
	config  ConnConfig
	mu      sync.Mutex
	judging atomic.Bool
}

func newConn(ws *websocket.Conn, cfg ConnConfig) *conn {
	ws.SetReadLimit(cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})
	return &conn{ws: ws, config: cfg}
}

func (c *conn) Send(msg game.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
}

func (c *conn) closeWith(code int, reason string) {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.config.WriteTimeout))
	c.mu.Unlock()
	_ = c.ws.Close()
}

// keepAlive pings until stop closes, and drops the socket once sub ends (for example when the
// same player joined again from somewhere else).
func (c *conn) keepAlive(sub *game.Subscription, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-sub.Done():
			c.closeWith(websocket.CloseNormalClosure, "closed")
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (s *Socket) handleLobby(c *gin.Context) {
	id := c.Param("id")
	name := c.Query("player_name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player_name_required"})
		return
	}
	lobby, err := s.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("lobby_id", id).Msg("failed to upgrade WebSocket connection")
		return
	}
	cn := newConn(ws, s.config)
	player := game.Player{Name: name}

	sub, err := lobby.Join(player, cn)
	if err != nil {
		reason := "join_failed"
		if errors.Is(err, game.ErrLobbyClosed) {
			reason = "lobby_closed"
		}
		cn.closeWith(websocket.ClosePolicyViolation, reason)
		return
	}
	log.Info().Str("lobby_id", id).Str("player", name).Str("remote", c.Request.RemoteAddr).Msg("ws:join")

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	go cn.keepAlive(sub, stop)
	defer func() {
		close(stop)
		cancel()
		lobby.Disconnect(sub)
		_ = ws.Close()
		log.Info().Str("lobby_id", id).Str("player", name).Msg("ws:disconnect")
	}()

	for {
		var msg game.ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, websocket.ErrCloseSent) {
				log.Debug().Err(err).Str("lobby_id", id).Str("player", name).Msg("ws read ended")
			}
			return
		}
		switch msg.Type {
		case game.ClientStartGame:
			if err := lobby.RequestStart(); err != nil {
				return
			}
		case game.ClientSubmitGuess:
			image := msg.ImageB64
			if !judgeOne(&cn.judging, func() { _ = lobby.SubmitGuess(ctx, player, image) }) {
				log.Debug().Str("lobby_id", id).Str("player", name).Msg("guess dropped, previous one still being judged")
			}
		default:
			log.Debug().Str("lobby_id", id).Str("type", string(msg.Type)).Msg("ignoring unknown client message")
		}
	}
}

func (s *Socket) handleFeed(c *gin.Context) {
	if s.feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed_disabled"})
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade feed connection")
		return
	}
	cn := newConn(ws, s.config)
	sub := s.feed.Subscribe()
	stop := make(chan struct{})
	go cn.keepAlive(sub, stop)

	go func() {
		for {
			msg, err := sub.Next(context.Background())
			if err != nil {
				return
			}
			if err := cn.Send(msg); err != nil {
				sub.Close()
				return
			}
		}
	}()

	defer func() {
		close(stop)
		sub.Close()
		_ = ws.Close()
	}()
	// only control frames are expected; reading keeps pongs flowing
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
