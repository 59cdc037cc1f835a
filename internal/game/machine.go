package game

import (
	"maps"
	"slices"
	"time"
)

// PlaceholderObject is used as the round target when the catalog has nothing to offer.
var PlaceholderObject = GameObject{
	Name:     "Sample",
	ImageB64: "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAwMCAO2nY0kAAAAASUVORK5CYII=",
}

const (
	floorEpsilon           = 1e-9
	defaultDifficultyFloor = 0.1
)

// validFloor keeps difficulty strictly positive whatever the configuration says.
func validFloor(f float64) float64 {
	if f <= 0 || f > 1 {
		return defaultDifficultyFloor
	}
	return f
}

type Event interface {
	isEvent()
}

type JoinPlayer struct{ Player Player }
type LeavePlayer struct{ Player Player }
type RequestStart struct{}

// Timer and async events carry the round generation they were issued for.
type CountdownElapsed struct{ Round int }
type IntermissionElapsed struct{ Round int }
type RoundTimerElapsed struct{ Round int }
type TargetSelected struct {
	Round  int
	Target GameObject
}
type NoTargetAvailable struct{ Round int }
type DifficultyTick struct {
	Round int
	Value float64
}
type GuessJudged struct {
	Round   int
	Player  Player
	Correct bool
}

func (JoinPlayer) isEvent() {}
func (LeavePlayer) isEvent() {}
func (RequestStart) isEvent() {}
func (CountdownElapsed) isEvent() {}
func (IntermissionElapsed) isEvent() {}
func (RoundTimerElapsed) isEvent() {}
func (TargetSelected) isEvent() {}
func (NoTargetAvailable) isEvent() {}
func (DifficultyTick) isEvent() {}
func (GuessJudged) isEvent() {}

// Directive asks the orchestrator to do something the machine cannot do itself.
type Directive int

const (
	DirectiveNone Directive = iota
	DirectiveStartCountdown
	DirectiveSelectTarget
	DirectiveStartRound
	DirectiveStartIntermission
	DirectiveStopTimers
)

// Outcome is either a message (broadcast when Recipient is empty) or a directive.
type Outcome struct {
	Message   *Message
	Recipient string
	Directive Directive
	Round     int
}

func broadcast(m Message) Outcome { return Outcome{Message: &m} }
func private(to string, m Message) Outcome { return Outcome{Message: &m, Recipient: to} }
func directive(d Directive, round int) Outcome { return Outcome{Directive: d, Round: round} }

type Rules struct {
	Countdown       time.Duration
	DifficultyFloor float64
}

// Machine holds the canonical state of one lobby. It is not safe for concurrent use;
// the owning Lobby serializes every call.
type Machine struct {
	id       string
	settings Settings
	rules    Rules

	players []Player
	joinSeq map[string]int
	nextSeq int

	phase  Phase
	totals map[string]float64
	round  int
}

func NewMachine(id string, settings Settings, rules Rules) *Machine {
	rules.DifficultyFloor = validFloor(rules.DifficultyFloor)
	return &Machine{
		id:       id,
		settings: settings,
		rules:    rules,
		joinSeq:  make(map[string]int),
		phase:    Phase{Kind: PhaseWaitingForStart},
		totals:   make(map[string]float64),
	}
}

func (m *Machine) Phase() Phase { return m.phase.clone() }

func (m *Machine) Round() int { return m.round }

func (m *Machine) PlayerCount() int { return len(m.players) }

func (m *Machine) HasPlayer(name string) bool { return m.indexOf(name) >= 0 }

// HasScored reports whether name already scored in the running round.
func (m *Machine) HasScored(name string) bool {
	if m.phase.Kind != PhaseSearching {
		return false
	}
	_, ok := m.phase.RoundScores[name]
	return ok
}

func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		ID:          m.id,
		Round:       m.round,
		Players:     slices.Clone(m.players),
		Settings:    m.settings,
		Phase:       m.phase.clone(),
		TotalScores: maps.Clone(m.totals),
	}
}

// Apply runs one event through the transition table. Events that do not apply to the
// current phase return no outcomes and leave the state untouched.
func (m *Machine) Apply(ev Event) (Phase, []Outcome) {
	var out []Outcome
	switch e := ev.(type) {
	case JoinPlayer:
		out = m.join(e.Player)
	case LeavePlayer:
		out = m.leave(e.Player)
	case RequestStart:
		out = m.requestStart()
	case CountdownElapsed:
		if m.phase.Kind == PhaseCountdown && e.Round == m.round {
			out = []Outcome{directive(DirectiveSelectTarget, m.round)}
		}
	case IntermissionElapsed:
		if m.phase.Kind == PhaseRoundOver && e.Round == m.round {
			out = []Outcome{directive(DirectiveSelectTarget, m.round)}
		}
	case TargetSelected:
		if m.awaitingTarget(e.Round) {
			out = m.startRound(e.Target)
		}
	case NoTargetAvailable:
		if m.awaitingTarget(e.Round) {
			out = m.startRound(PlaceholderObject)
		}
	case GuessJudged:
		out = m.judge(e)
	case DifficultyTick:
		out = m.tick(e)
	case RoundTimerElapsed:
		if m.phase.Kind == PhaseSearching && e.Round == m.round {
			out = m.endRound()
		}
	}
	return m.Phase(), out
}

func (m *Machine) indexOf(name string) int {
	return slices.IndexFunc(m.players, func(p Player) bool { return p.Name == name })
}

func (m *Machine) withSnapshot(out ...Outcome) []Outcome {
	return append(out, broadcast(stateMessage(m.Snapshot())))
}

func (m *Machine) join(p Player) []Outcome {
	if p.Name == "" || m.phase.Kind == PhaseGameOver {
		return nil
	}
	if i := m.indexOf(p.Name); i >= 0 {
		m.players[i] = p
	} else {
		m.players = append(m.players, p)
	}
	if _, seen := m.joinSeq[p.Name]; !seen {
		m.joinSeq[p.Name] = m.nextSeq
		m.nextSeq++
	}
	return m.withSnapshot()
}

func (m *Machine) leave(p Player) []Outcome {
	i := m.indexOf(p.Name)
	if i < 0 {
		return nil
	}
	m.players = slices.Delete(m.players, i, i+1)
	return m.withSnapshot()
}

func (m *Machine) requestStart() []Outcome {
	if m.phase.Kind != PhaseWaitingForStart || len(m.players) == 0 {
		return nil
	}
	secs := int(m.rules.Countdown / time.Second)
	m.phase = Phase{Kind: PhaseCountdown, CountdownSecs: secs}
	return m.withSnapshot(
		broadcast(Message{Type: MsgCountdown, Duration: secs}),
		directive(DirectiveStartCountdown, m.round),
	)
}

func (m *Machine) awaitingTarget(round int) bool {
	return round == m.round && (m.phase.Kind == PhaseCountdown || m.phase.Kind == PhaseRoundOver)
}

func (m *Machine) startRound(target GameObject) []Outcome {
	m.round++
	m.phase = Phase{
		Kind:        PhaseSearching,
		Target:      &target,
		RoundScores: make(map[string]float64),
		Difficulty:  1.0,
	}
	return m.withSnapshot(
		broadcast(Message{Type: MsgNewRound, Target: &target}),
		directive(DirectiveStartRound, m.round),
	)
}

func (m *Machine) judge(e GuessJudged) []Outcome {
	if m.phase.Kind != PhaseSearching || e.Round != m.round {
		return nil
	}
	name := e.Player.Name
	if m.indexOf(name) < 0 || m.HasScored(name) {
		return nil
	}
	if !e.Correct {
		return []Outcome{private(name, guessResultMessage(false))}
	}

	// earlier finders earn more: everyone still searching is worth a point
	award := float64(len(m.players) - len(m.phase.RoundScores) - 1)
	if award < 0 {
		award = 0
	}
	m.phase.RoundScores[name] = award
	m.totals[name] += award

	out := []Outcome{private(name, guessResultMessage(true))}
	switch {
	case m.totals[name] >= m.settings.PointsToWin:
		board := m.leaderboard()
		m.phase = Phase{Kind: PhaseGameOver, Leaderboard: board}
		out = append(out,
			broadcast(Message{Type: MsgGameOver, Leaderboard: slices.Clone(board)}),
			directive(DirectiveStopTimers, m.round),
		)
	case len(m.phase.RoundScores) >= m.settings.ScorersPerTarget:
		return append(out, m.endRound()...)
	}
	return m.withSnapshot(out...)
}

func (m *Machine) endRound() []Outcome {
	scores := maps.Clone(m.phase.RoundScores)
	m.phase = Phase{Kind: PhaseRoundOver}
	return m.withSnapshot(
		broadcast(Message{Type: MsgRoundOver, Scores: scores}),
		directive(DirectiveStartIntermission, m.round),
	)
}

func (m *Machine) tick(e DifficultyTick) []Outcome {
	if m.phase.Kind != PhaseSearching || e.Round != m.round {
		return nil
	}
	v := e.Value
	if v <= m.rules.DifficultyFloor+floorEpsilon {
		v = m.rules.DifficultyFloor
	}
	if v >= m.phase.Difficulty {
		return nil
	}
	m.phase.Difficulty = v
	return m.withSnapshot(broadcast(zoomMessage(v)))
}

// leaderboard ranks everyone who ever joined, highest total first, ties by join order.
func (m *Machine) leaderboard() []Standing {
	names := make([]string, 0, len(m.joinSeq))
	for name := range m.joinSeq {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if sa, sb := m.totals[a], m.totals[b]; sa != sb {
			if sa > sb {
				return -1
			}
			return 1
		}
		return m.joinSeq[a] - m.joinSeq[b]
	})
	board := make([]Standing, len(names))
	for i, name := range names {
		board[i] = Standing{Player: name, Score: m.totals[name]}
	}
	return board
}
