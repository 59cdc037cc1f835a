package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/georacer/internal/game"
	"github.com/rs/zerolog/log"
)

const messageEvent = "lobby:message"

type ConnCtx struct {
	mu     sync.Mutex
	Lobby  *game.Lobby
	Player game.Player
	sub    *game.Subscription
	ctx    context.Context
	cancel context.CancelFunc

	judging atomic.Bool
}

func (c *ConnCtx) current() (*game.Lobby, game.Player, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Lobby, c.Player, c.ctx
}

// detach leaves whatever lobby this connection is in.
func (c *ConnCtx) detach() {
	c.mu.Lock()
	lobby, sub, cancel := c.Lobby, c.sub, c.cancel
	c.Lobby, c.sub, c.ctx, c.cancel = nil, nil, nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if lobby != nil && sub != nil {
		lobby.Disconnect(sub)
	}
}

// emitter delivers lobby messages as socket.io events.
type emitter struct{ conn socketio.Conn }

func (e emitter) Send(msg game.Message) error {
	e.conn.Emit(messageEvent, msg)
	return nil
}

// Server exposes lobbies over socket.io for browser clients that cannot hold a raw socket.
type Server struct {
	manager *game.Manager
}

func New(manager *game.Manager) *Server {
	return &Server{manager: manager}
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// lobby:join
	io.OnEvent("/", "lobby:join", func(s socketio.Conn, payload struct {
		LobbyID    string `json:"lobby_id"`
		PlayerName string `json:"player_name"`
	}) map[string]any {
		lobby, err := srv.manager.Get(payload.LobbyID)
		if err != nil {
			return srv.err(s, "session_not_found", "Session not found")
		}

		player := game.Player{Name: payload.PlayerName}
		sub, err := lobby.Join(player, emitter{conn: s})
		if err != nil {
			return srv.err(s, "bad_request", err.Error())
		}
		// joining again on this socket drops whatever it was attached to before
		ctx := connCtx(s)
		ctx.detach()
		guessCtx, cancel := context.WithCancel(context.Background())
		ctx.mu.Lock()
		ctx.Lobby, ctx.Player, ctx.sub, ctx.ctx, ctx.cancel = lobby, player, sub, guessCtx, cancel
		ctx.mu.Unlock()

		go func() {
			<-sub.Done()
			if lobby.Closed() {
				s.Emit("lobby:closed", map[string]any{"lobby_id": lobby.ID()})
			}
		}()
		log.Info().Str("sid", s.ID()).Str("lobby_id", lobby.ID()).Str("player", player.Name).Msg("lobby:join")
		return map[string]any{"ok": true, "lobby_id": lobby.ID()}
	})

	// lobby:start
	io.OnEvent("/", "lobby:start", func(s socketio.Conn) map[string]any {
		lobby, _, _ := connCtx(s).current()
		if lobby == nil {
			return srv.err(s, "not_joined", "Join a lobby first")
		}
		if err := lobby.RequestStart(); err != nil {
			return srv.err(s, "lobby_closed", err.Error())
		}
		log.Info().Str("sid", s.ID()).Str("lobby_id", lobby.ID()).Msg("lobby:start")
		return map[string]any{"ok": true}
	})

	// lobby:guess; the verdict arrives later as a lobby:message
	io.OnEvent("/", "lobby:guess", func(s socketio.Conn, payload struct {
		ImageB64 string `json:"image_b64"`
	}) map[string]any {
		lobby, player, ctx := connCtx(s).current()
		if lobby == nil {
			return srv.err(s, "not_joined", "Join a lobby first")
		}
		if !judgeOne(&connCtx(s).judging, func() { _ = lobby.SubmitGuess(ctx, player, payload.ImageB64) }) {
			return srv.err(s, "guess_pending", "Previous guess is still being judged")
		}
		return map[string]any{"ok": true}
	})

	// lobby:leave
	io.OnEvent("/", "lobby:leave", func(s socketio.Conn) map[string]any {
		connCtx(s).detach()
		return map[string]any{"ok": true}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		sid := ""
		if s != nil {
			sid = s.ID()
		}
		log.Error().Str("sid", sid).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		connCtx(s).detach()
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	// Mount to router
	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func connCtx(s socketio.Conn) *ConnCtx {
	if ctx, ok := s.Context().(*ConnCtx); ok {
		return ctx
	}
	ctx := &ConnCtx{}
	s.SetContext(ctx)
	return ctx
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}
