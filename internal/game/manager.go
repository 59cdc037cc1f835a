package game

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidPlayer   = errors.New("player name required")
	ErrLobbyClosed     = errors.New("lobby closed")
	ErrNoObjects       = errors.New("no game objects available")
)

// Manager is the session table. Lobbies are created explicitly and removed when they empty
// out or are ended.
type Manager struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	deps    Deps
}

func NewManager(deps Deps) *Manager {
	return &Manager{lobbies: make(map[string]*Lobby), deps: deps}
}

func (m *Manager) Create(settings Settings) (string, error) {
	if !settings.Valid() {
		return "", ErrInvalidSettings
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := randomCode(5)
	for m.lobbies[id] != nil {
		id = randomCode(5)
	}
	l := newLobby(id, settings, m.deps, m.forget)
	m.lobbies[id] = l
	if m.deps.EmptyLobbyTTL > 0 {
		go m.expireIfEmpty(l, m.deps.EmptyLobbyTTL)
	}
	log.Info().Str("lobby_id", id).
		Float64("points_to_win", settings.PointsToWin).
		Int("scorers_per_target", settings.ScorersPerTarget).
		Msg("lobby created")
	return id, nil
}

func (m *Manager) Get(id string) (*Lobby, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.lobbies[id]
	if l == nil {
		return nil, ErrSessionNotFound
	}
	return l, nil
}

func (m *Manager) End(id string) error {
	m.mu.Lock()
	l := m.lobbies[id]
	delete(m.lobbies, id)
	m.mu.Unlock()
	if l == nil {
		return ErrSessionNotFound
	}
	l.End()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lobbies)
}

// Shutdown ends every lobby and waits for their tasks to stop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		all = append(all, l)
	}
	clear(m.lobbies)
	m.mu.Unlock()

	for _, l := range all {
		l.End()
	}
}

// expireIfEmpty ends l once ttl has passed if nobody joined it by then. It runs outside the
// lobby's task group since ending the lobby waits for that group.
func (m *Manager) expireIfEmpty(l *Lobby, ttl time.Duration) {
	timer := m.deps.Clock.NewTimer(ttl)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		if l.endIfEmpty() {
			log.Info().Str("lobby_id", l.id).Dur("ttl", ttl).Msg("lobby expired, nobody joined")
		}
	case <-l.ctx.Done():
	}
}

func (m *Manager) forget(l *Lobby) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lobbies[l.id] == l {
		delete(m.lobbies, l.id)
	}
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
