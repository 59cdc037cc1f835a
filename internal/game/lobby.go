package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink is one client connection as seen by a lobby.
type Sink interface {
	Send(msg Message) error
}

// Catalog hands out round targets. Sample returns ErrNoObjects when it has none.
type Catalog interface {
	Sample(ctx context.Context) (GameObject, error)
}

// Oracle decides whether two images show the same object.
type Oracle interface {
	Compare(ctx context.Context, target, guess string) (bool, error)
}

type SnapshotStore interface {
	Put(ctx context.Context, id string, snap Snapshot) error
}

const (
	defaultOracleTimeout = 20 * time.Second
	persistTimeout       = 5 * time.Second

	ErrCodeJudgeUnavailable = "judge_unavailable"
)

// Deps are the collaborators shared by every lobby of a Manager.
type Deps struct {
	Catalog Catalog
	Oracle  Oracle
	Store   SnapshotStore
	Clock   clockwork.Clock

	Timings          Timings
	SubscriberBuffer int
	OracleTimeout    time.Duration
	// EmptyLobbyTTL ends a lobby nobody joined within that long. Zero keeps it open.
	EmptyLobbyTTL time.Duration

	// ResultsFile receives a summary of every finished game when set.
	ResultsFile string
}

// Lobby serializes every event of one session through its Machine and turns the resulting
// outcomes into hub messages, timer tasks and persistence.
type Lobby struct {
	id   string
	deps Deps
	log  zerolog.Logger

	mu      sync.Mutex
	machine *Machine
	hub     *Hub
	sched   *Scheduler
	conns   map[string]*Subscription
	closed  bool
	onClose func(*Lobby)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	persistMu sync.Mutex
	pending   *Snapshot
	kick      chan struct{}
}

func newLobby(id string, settings Settings, deps Deps, onClose func(*Lobby)) *Lobby {
	if deps.OracleTimeout <= 0 {
		deps.OracleTimeout = defaultOracleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lobby{
		id:      id,
		deps:    deps,
		log:     log.With().Str("lobby_id", id).Logger(),
		machine: NewMachine(id, settings, deps.Timings.rules()),
		hub:     NewHub(deps.SubscriberBuffer),
		conns:   make(map[string]*Subscription),
		onClose: onClose,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
	}
	l.sched = NewScheduler(deps.Clock, deps.Timings, l.apply)
	if deps.Store != nil {
		l.wg.Add(1)
		go l.persistLoop()
	}
	return l
}

func (l *Lobby) ID() string { return l.id }

func (l *Lobby) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.machine.Snapshot()
}

func (l *Lobby) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Join adds p to the lobby and subscribes them to its messages. A returning player keeps their
// place; their previous connection is closed. Joining a finished game makes p a spectator who
// gets the final state but is not added to the roster. When sink is non-nil a writer goroutine pumps the
// subscription into it and removes the player once sending fails or the subscription ends.
func (l *Lobby) Join(p Player, sink Sink) (*Subscription, error) {
	if p.Name == "" {
		return nil, ErrInvalidPlayer
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLobbyClosed
	}
	sub := l.hub.Subscribe(p.Name)
	prev := l.conns[p.Name]
	l.conns[p.Name] = sub
	_, out := l.machine.Apply(JoinPlayer{Player: p})
	if len(out) == 0 {
		// game is over; let the late joiner see the final state
		sub.Offer(stateMessage(l.machine.Snapshot()))
	}
	l.dispatch(out)
	l.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	l.log.Info().Str("player", p.Name).Msg("player joined")
	if sink != nil {
		go l.pump(sub, sink)
	}
	return sub, nil
}

// Leave removes p regardless of which connection they are on.
func (l *Lobby) Leave(p Player) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	sub := l.conns[p.Name]
	delete(l.conns, p.Name)
	l.removeLocked(p)
	l.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	l.teardownIfClosed()
}

// Disconnect removes the owner of sub, but only while sub is still their current connection.
func (l *Lobby) Disconnect(sub *Subscription) {
	defer sub.Close()
	l.mu.Lock()
	if l.closed || l.conns[sub.Owner()] != sub {
		l.mu.Unlock()
		return
	}
	delete(l.conns, sub.Owner())
	l.removeLocked(Player{Name: sub.Owner()})
	l.mu.Unlock()
	l.teardownIfClosed()
}

func (l *Lobby) removeLocked(p Player) {
	_, out := l.machine.Apply(LeavePlayer{Player: p})
	if len(out) == 0 {
		return
	}
	l.log.Info().Str("player", p.Name).Msg("player left")
	l.dispatch(out)
	if l.machine.PlayerCount() == 0 {
		l.closed = true
		l.sched.Cancel()
	}
}

func (l *Lobby) RequestStart() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLobbyClosed
	}
	_, out := l.machine.Apply(RequestStart{})
	l.dispatch(out)
	return nil
}

// SubmitGuess asks the oracle whether image shows the current target and applies the verdict.
// Guesses that cannot score right now are dropped. The oracle runs without the lobby lock held.
func (l *Lobby) SubmitGuess(ctx context.Context, p Player, image string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLobbyClosed
	}
	phase := l.machine.Phase()
	round := l.machine.Round()
	if phase.Kind != PhaseSearching || phase.Target == nil ||
		!l.machine.HasPlayer(p.Name) || l.machine.HasScored(p.Name) {
		l.mu.Unlock()
		return nil
	}
	target := *phase.Target
	l.mu.Unlock()

	correct, failed := l.judge(ctx, p, target, image)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if failed {
		l.hub.PublishTo(p.Name, errorMessage(ErrCodeJudgeUnavailable))
	}
	_, out := l.machine.Apply(GuessJudged{Round: round, Player: p, Correct: correct})
	l.dispatch(out)
	return nil
}

func (l *Lobby) judge(ctx context.Context, p Player, target GameObject, image string) (correct, failed bool) {
	if l.deps.Oracle == nil {
		return false, true
	}
	ctx, cancel := context.WithTimeout(ctx, l.deps.OracleTimeout)
	defer cancel()
	same, err := l.deps.Oracle.Compare(ctx, target.ImageB64, image)
	if err != nil {
		l.log.Warn().Err(err).Str("player", p.Name).Str("target", target.Name).Msg("oracle unavailable, guess counted as wrong")
		return false, true
	}
	l.log.Debug().Str("player", p.Name).Str("target", target.Name).Bool("correct", same).Msg("guess judged")
	return same, false
}

// End tears the lobby down whether or not players remain.
func (l *Lobby) End() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.sched.Cancel()
	l.mu.Unlock()
	l.teardown()
}

// endIfEmpty ends the lobby when it has no players and reports whether it did.
func (l *Lobby) endIfEmpty() bool {
	l.mu.Lock()
	if l.closed || l.machine.PlayerCount() > 0 {
		l.mu.Unlock()
		return false
	}
	l.closed = true
	l.sched.Cancel()
	l.mu.Unlock()
	l.teardown()
	return true
}

// apply feeds timer and catalog results back into the machine.
func (l *Lobby) apply(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_, out := l.machine.Apply(ev)
	l.dispatch(out)
}

// dispatch must be called with l.mu held.
func (l *Lobby) dispatch(out []Outcome) {
	for _, o := range out {
		if o.Message != nil {
			if o.Recipient != "" {
				l.hub.PublishTo(o.Recipient, *o.Message)
			} else {
				l.hub.Publish(*o.Message)
			}
			if o.Message.Type == MsgGameState && o.Message.State != nil {
				l.queueSnapshot(*o.Message.State)
			}
			continue
		}
		switch o.Directive {
		case DirectiveStartCountdown:
			l.sched.StartCountdown(o.Round)
		case DirectiveSelectTarget:
			l.sched.Cancel()
			l.wg.Add(1)
			go l.selectTarget(o.Round)
		case DirectiveStartRound:
			l.log.Info().Int("round", o.Round).Str("phase", string(PhaseSearching)).Msg("round started")
			l.sched.StartRound(o.Round)
		case DirectiveStartIntermission:
			l.sched.StartIntermission(o.Round)
		case DirectiveStopTimers:
			l.log.Info().Str("phase", string(PhaseGameOver)).Msg("game over")
			l.sched.Cancel()
			if l.deps.ResultsFile != "" {
				snap := l.machine.Snapshot()
				l.wg.Add(1)
				go l.exportResults(snap)
			}
		}
	}
}

func (l *Lobby) selectTarget(round int) {
	defer l.wg.Done()
	if l.deps.Catalog == nil {
		l.apply(NoTargetAvailable{Round: round})
		return
	}
	obj, err := l.deps.Catalog.Sample(l.ctx)
	if err != nil {
		if !errors.Is(err, ErrNoObjects) {
			l.log.Error().Err(err).Msg("could not sample target")
		} else {
			l.log.Warn().Msg("catalog is empty, using placeholder target")
		}
		l.apply(NoTargetAvailable{Round: round})
		return
	}
	l.apply(TargetSelected{Round: round, Target: obj})
}

func (l *Lobby) exportResults(snap Snapshot) {
	defer l.wg.Done()
	if err := ExportResults(snap, l.deps.ResultsFile, l.now()); err != nil {
		l.log.Error().Err(err).Str("file", l.deps.ResultsFile).Msg("could not export results")
	}
}

func (l *Lobby) now() time.Time {
	if l.deps.Clock != nil {
		return l.deps.Clock.Now()
	}
	return time.Now()
}

func (l *Lobby) pump(sub *Subscription, sink Sink) {
	defer l.Disconnect(sub)
	for {
		msg, err := sub.Next(context.Background())
		if err != nil {
			return
		}
		if err := sink.Send(msg); err != nil {
			l.log.Debug().Err(err).Str("player", sub.Owner()).Msg("send failed, dropping connection")
			return
		}
	}
}

func (l *Lobby) teardownIfClosed() {
	if l.Closed() {
		l.teardown()
	}
}

// teardown runs outside l.mu, after closed has been set.
func (l *Lobby) teardown() {
	l.once.Do(func() {
		l.cancel()
		l.sched.Stop()
		l.hub.Close()
		l.wg.Wait()
		l.log.Info().Msg("lobby closed")
		if l.onClose != nil {
			l.onClose(l)
		}
	})
}

func (l *Lobby) queueSnapshot(snap Snapshot) {
	if l.deps.Store == nil {
		return
	}
	l.persistMu.Lock()
	l.pending = &snap
	l.persistMu.Unlock()
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// persistLoop writes only the newest snapshot; intermediate ones are skipped when the store lags.
func (l *Lobby) persistLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.kick:
			l.flush()
		case <-l.ctx.Done():
			l.flush()
			return
		}
	}
}

func (l *Lobby) flush() {
	l.persistMu.Lock()
	snap := l.pending
	l.pending = nil
	l.persistMu.Unlock()
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := l.deps.Store.Put(ctx, l.id, *snap); err != nil {
		l.log.Warn().Err(err).Int("round", snap.Round).Msg("could not persist snapshot")
	}
}
