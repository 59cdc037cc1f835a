package game

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestNewManager(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	if m.lobbies == nil {
		t.Fatal("lobbies map should be initialized")
	}
	if m.Len() != 0 {
		t.Fatal("manager should start empty")
	}
}

func TestCreateLobby(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	t.Cleanup(m.Shutdown)

	id, err := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 2})
	if err != nil {
		t.Fatalf("should be able to create lobby: %v", err)
	}
	if len(id) != 5 {
		t.Fatalf("expected a 5 character code, got %q", id)
	}

	l, err := m.Get(id)
	if err != nil {
		t.Fatalf("should be able to retrieve created lobby: %v", err)
	}
	snap := l.Snapshot()
	if snap.ID != id {
		t.Fatalf("expected id %s, got %s", id, snap.ID)
	}
	if snap.Settings.ScorersPerTarget != 2 {
		t.Fatalf("expected 2 scorers per target, got %d", snap.Settings.ScorersPerTarget)
	}
	if snap.Phase.Kind != PhaseWaitingForStart {
		t.Fatalf("expected phase %s, got %s", PhaseWaitingForStart, snap.Phase.Kind)
	}
}

func TestCreateRejectsInvalidSettings(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	for _, s := range []Settings{
		{PointsToWin: 0, ScorersPerTarget: 1},
		{PointsToWin: 5, ScorersPerTarget: 0},
		{PointsToWin: -1, ScorersPerTarget: 3},
	} {
		if _, err := m.Create(s); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("expected ErrInvalidSettings for %+v, got %v", s, err)
		}
	}
	if m.Len() != 0 {
		t.Fatal("invalid settings should not create a lobby")
	}
}

func TestGetUnknownLobby(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	if _, err := m.Get("NOPE1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.End("NOPE1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndLobby(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	id, _ := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 1})
	l, _ := m.Get(id)
	sub, err := l.Join(Player{Name: "Alice"}, nil)
	if err != nil {
		t.Fatalf("should be able to join: %v", err)
	}

	if err := m.End(id); err != nil {
		t.Fatalf("should be able to end lobby: %v", err)
	}
	if _, err := m.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("ended lobby should be gone")
	}
	if !l.Closed() {
		t.Fatal("ended lobby should be closed")
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscriptions should be closed when the lobby ends")
	}
	if err := l.RequestStart(); !errors.Is(err, ErrLobbyClosed) {
		t.Fatalf("expected ErrLobbyClosed, got %v", err)
	}
}

func TestShutdownEndsAll(t *testing.T) {
	m := NewManager(testDeps(clockwork.NewFakeClock()))
	var lobbies []*Lobby
	for i := 0; i < 3; i++ {
		id, err := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 1})
		if err != nil {
			t.Fatalf("should be able to create lobby: %v", err)
		}
		l, _ := m.Get(id)
		lobbies = append(lobbies, l)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 lobbies, got %d", m.Len())
	}

	m.Shutdown()
	if m.Len() != 0 {
		t.Fatalf("expected no lobbies after shutdown, got %d", m.Len())
	}
	for _, l := range lobbies {
		if !l.Closed() {
			t.Fatalf("lobby %s should be closed", l.ID())
		}
	}
}

func TestEmptyLobbyExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	deps := testDeps(clock)
	deps.EmptyLobbyTTL = time.Minute
	m := NewManager(deps)
	t.Cleanup(m.Shutdown)

	id, err := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 1})
	if err != nil {
		t.Fatalf("should be able to create lobby: %v", err)
	}
	l, _ := m.Get(id)
	waitForWaiters(t, clock, 1)
	clock.Advance(59 * time.Second)
	if l.Closed() {
		t.Fatal("lobby should stay open before the ttl passes")
	}
	clock.Advance(time.Second)
	eventually(t, func() bool { return m.Len() == 0 }, "empty lobby to expire")
	if !l.Closed() {
		t.Fatal("expired lobby should be closed")
	}
	if _, err := l.Join(Player{Name: "Alice"}, nil); !errors.Is(err, ErrLobbyClosed) {
		t.Fatalf("expected ErrLobbyClosed, got %v", err)
	}
}

func TestJoinedLobbyOutlivesEmptyTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	deps := testDeps(clock)
	deps.EmptyLobbyTTL = time.Minute
	m := NewManager(deps)
	t.Cleanup(m.Shutdown)

	id, _ := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 1})
	l, _ := m.Get(id)
	if _, err := l.Join(Player{Name: "Alice"}, nil); err != nil {
		t.Fatalf("should be able to join: %v", err)
	}
	waitForWaiters(t, clock, 1)
	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	if l.Closed() || m.Len() != 1 {
		t.Fatal("a lobby with players should not expire")
	}
}

func TestEmptyLobbyTTLDisabled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(testDeps(clock))
	t.Cleanup(m.Shutdown)

	if _, err := m.Create(Settings{PointsToWin: 10, ScorersPerTarget: 1}); err != nil {
		t.Fatalf("should be able to create lobby: %v", err)
	}
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	if m.Len() != 1 {
		t.Fatalf("without a ttl the lobby should stay, have %d", m.Len())
	}
}

func TestRandomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := randomCode(5)
		if len(code) != 5 {
			t.Fatalf("expected length 5, got %d", len(code))
		}
		for _, r := range code {
			if r == 'O' || r == '0' || r == 'I' || r == '1' {
				t.Fatalf("code %s contains an ambiguous character", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatal("codes should vary")
	}
}
