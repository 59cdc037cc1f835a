package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Timings struct {
	Countdown     time.Duration `yaml:"countdown"`
	RoundDuration time.Duration `yaml:"round_duration"`
	Intermission  time.Duration `yaml:"intermission"`
	DecayInterval time.Duration `yaml:"decay_interval"`

	DecayStep       float64 `yaml:"decay_step"`
	DifficultyFloor float64 `yaml:"difficulty_floor"`
}

func DefaultTimings() Timings {
	return Timings{
		Countdown:       3 * time.Second,
		RoundDuration:   60 * time.Second,
		Intermission:    5 * time.Second,
		DecayInterval:   3 * time.Second,
		DecayStep:       0.1,
		DifficultyFloor: 0.1,
	}
}

func (t Timings) rules() Rules {
	return Rules{Countdown: t.Countdown, DifficultyFloor: t.DifficultyFloor}
}

// Scheduler runs at most one timed task per lobby. Starting a task cancels the previous one.
// Elapsed timers are reported through fire from the task's own goroutine.
type Scheduler struct {
	clock   clockwork.Clock
	timings Timings
	fire    func(Event)

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(clock clockwork.Clock, timings Timings, fire func(Event)) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timings.DifficultyFloor = validFloor(timings.DifficultyFloor)
	return &Scheduler{clock: clock, timings: timings, fire: fire}
}

func (s *Scheduler) StartCountdown(round int) {
	s.after(s.timings.Countdown, CountdownElapsed{Round: round})
}

func (s *Scheduler) StartIntermission(round int) {
	s.after(s.timings.Intermission, IntermissionElapsed{Round: round})
}

// StartRound lowers the difficulty by DecayStep every DecayInterval until the floor is
// reached, and reports RoundTimerElapsed after RoundDuration.
func (s *Scheduler) StartRound(round int) {
	t := s.timings
	s.spawn(func(stop <-chan struct{}) {
		deadline := s.clock.NewTimer(t.RoundDuration)
		defer deadline.Stop()

		var (
			ticker clockwork.Ticker
			ticks  <-chan time.Time
		)
		if t.DecayInterval > 0 && t.DecayStep > 0 {
			ticker = s.clock.NewTicker(t.DecayInterval)
			defer ticker.Stop()
			ticks = ticker.Chan()
		}

		level := 1.0
		for {
			select {
			case <-stop:
				return
			case <-deadline.Chan():
				s.fire(RoundTimerElapsed{Round: round})
				return
			case <-ticks:
				level -= t.DecayStep
				if level <= t.DifficultyFloor+floorEpsilon {
					level = t.DifficultyFloor
					ticker.Stop()
					ticks = nil
				}
				s.fire(DifficultyTick{Round: round, Value: level})
			}
		}
	})
}

// Cancel stops the running task without waiting for it. A task that already fired may
// still deliver its event; receivers discard it by round.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Stop cancels the running task, refuses new ones and waits for the task goroutine to exit.
// It must not be called while holding a lock that fire acquires.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cancelLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) after(d time.Duration, ev Event) {
	s.spawn(func(stop <-chan struct{}) {
		timer := s.clock.NewTimer(d)
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.Chan():
			s.fire(ev)
		}
	})
}

func (s *Scheduler) spawn(task func(stop <-chan struct{})) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task(stop)
	}()
}

func (s *Scheduler) cancelLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
