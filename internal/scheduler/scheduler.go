// Package scheduler implements the card scheduling state machine.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/config"
)

var (
	// ErrInvalidOperation is returned when a transition is requested on a card
	// whose state contradicts it.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidConfiguration is returned for grades the scheduler has no rule for.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Action is the persistence obligation resulting from an answer.
type Action int

const (
	ActionUpdate Action = iota
	ActionDelete
)

func (a Action) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "update"
}

// Scheduler applies answers to cards according to a collection config.
type Scheduler struct {
	cfg *config.CollectionConfig
	now func() time.Time

	mu   sync.Mutex
	rand *rand.Rand
}

type Option func(*Scheduler)

// WithRand sets the random source used for interval fuzzing.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) {
		s.rand = r
	}
}

// WithClock sets the clock used to stamp reviews.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler for cfg.
func New(cfg *config.CollectionConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return s
}

// Now returns the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Answer applies grade to c in place and reports whether c must be updated or deleted.
func (s *Scheduler) Answer(c *card.Card, grade card.Grade) (Action, error) {
	if !grade.IsValid() {
		return ActionUpdate, fmt.Errorf("grade %v: %w", grade, ErrInvalidConfiguration)
	}
	if c.IsDeleted() {
		return ActionUpdate, fmt.Errorf("answer deleted card %d: %w", c.ID, ErrInvalidOperation)
	}

	now := s.now()
	if c.IsNew() {
		if err := s.updateLearningStep(c, now, true); err != nil {
			return ActionUpdate, err
		}
	}

	action := ActionUpdate
	switch {
	case c.IsLearning():
		var err error
		switch {
		case grade.IsFail():
			err = s.updateLearningStep(c, now, true)
		case s.IsGraduating(c):
			s.graduate(c, now, grade == card.GradeEasy)
		default:
			err = s.updateLearningStep(c, now, false)
		}
		if err != nil {
			return ActionUpdate, err
		}
	case c.IsDue():
		var err error
		if grade.IsFail() {
			action, err = s.lapse(c, now, grade)
		} else {
			err = s.review(c, now, grade)
		}
		if err != nil {
			return ActionUpdate, err
		}
	default:
		return ActionUpdate, fmt.Errorf("card %d in state %v: %w", c.ID, c.PracticeState, ErrInvalidOperation)
	}

	c.Reviews++
	c.LastModified = card.At(now)
	c.EFactor = s.sanitizeEase(c.EFactor)
	c.Interval = s.clampInterval(c.Interval)
	if action == ActionDelete {
		c.PracticeState = card.StateDeleted
	}
	return action, nil
}

// steps returns the step delays the card walks through while learning.
func (s *Scheduler) steps(c *card.Card) []time.Duration {
	if c.Lapses > 0 {
		return s.cfg.LapseSteps
	}
	return s.cfg.LearningSteps
}

// IsGraduating reports whether c is on its last learning step.
func (s *Scheduler) IsGraduating(c *card.Card) bool {
	return c.IsLearning() && c.LearningStep() >= len(s.steps(c))-1
}

// IsLeech reports whether c has just crossed a leech boundary.
// Leeches fire at the threshold and again every half threshold after it.
func (s *Scheduler) IsLeech(c *card.Card) bool {
	threshold := s.cfg.LeechThreshold
	if threshold <= 0 || c.Lapses < threshold {
		return false
	}
	every := (threshold + 1) / 2
	return c.Lapses%every == 0
}

func (s *Scheduler) updateLearningStep(c *card.Card, now time.Time, reset bool) error {
	step := 0
	if !reset {
		if !c.IsLearning() {
			return fmt.Errorf("advance learning step of card %d in state %v: %w", c.ID, c.PracticeState, ErrInvalidOperation)
		}
		step = c.LearningStep() + 1
	}

	steps := s.steps(c)
	if step >= len(steps) {
		return fmt.Errorf("learning step %d of card %d beyond %d steps: %w", step, c.ID, len(steps), ErrInvalidOperation)
	}
	c.PracticeState = card.StateLearning + card.PracticeState(step)
	c.Due = card.At(now.Add(steps[step]))
	return nil
}

func (s *Scheduler) graduate(c *card.Card, now time.Time, easy bool) {
	if c.Lapses > 0 {
		ivl := math.Max(float64(s.cfg.LapseMinInterval), s.cfg.LapseIntervalFactor*float64(c.Interval))
		c.Interval = s.sanitizeInterval(math.Floor(ivl))
	} else {
		ivl := s.cfg.GraduationInterval
		if easy {
			ivl = s.cfg.GraduationEasyInterval
		}
		c.Interval = s.sanitizeInterval(float64(ivl))
		c.EFactor = s.sanitizeEase(s.cfg.GraduationStartingEase)
	}
	c.PracticeState = card.StateDue
	c.Due = card.At(now.AddDate(0, 0, c.Interval))
}

func (s *Scheduler) lapse(c *card.Card, now time.Time, grade card.Grade) (Action, error) {
	if !grade.IsFail() {
		return ActionUpdate, fmt.Errorf("lapse card %d with grade %v: %w", c.ID, grade, ErrInvalidOperation)
	}

	c.Lapses++
	c.EFactor = s.sanitizeEase(c.EFactor + s.cfg.EaseLapse)
	if err := s.updateLearningStep(c, now, true); err != nil {
		return ActionUpdate, err
	}

	if !s.IsLeech(c) {
		return ActionUpdate, nil
	}
	switch s.cfg.LeechAction {
	case config.LeechActionDelete:
		return ActionDelete, nil
	default:
		c.MiscState |= card.MiscSuspended
		return ActionUpdate, nil
	}
}

func (s *Scheduler) review(c *card.Card, now time.Time, grade card.Grade) error {
	if grade.IsFail() {
		return fmt.Errorf("review card %d with grade %v: %w", c.ID, grade, ErrInvalidOperation)
	}

	// the interval uses the ease from before this answer
	ivl, err := s.nextInterval(c, now, grade)
	if err != nil {
		return err
	}
	delta, err := s.easeDelta(grade)
	if err != nil {
		return err
	}

	c.EFactor = s.sanitizeEase(c.EFactor + delta)
	c.Interval = s.sanitizeInterval(float64(ivl))
	c.Due = card.At(now.AddDate(0, 0, c.Interval))
	return nil
}

func (s *Scheduler) nextInterval(c *card.Card, now time.Time, grade card.Grade) (int, error) {
	last := float64(c.Interval)
	daysLate := math.Max(0, math.Floor(now.Sub(c.Due.Time()).Hours()/24))

	var ivl float64
	switch grade {
	case card.GradeHard:
		ivl = math.Floor((last + daysLate*0.25) * 1.2)
	case card.GradeGood:
		ivl = math.Floor((last + daysLate*0.5) * c.EFactor)
	case card.GradeEasy:
		ivl = math.Floor((last + daysLate) * c.EFactor * s.cfg.EasyBonus)
	default:
		return 0, fmt.Errorf("no interval formula for grade %v: %w", grade, ErrInvalidConfiguration)
	}
	return s.fuzz(int(math.Max(last+1, ivl)), c.Interval), nil
}

// fuzz spreads intervals so that cards reviewed together do not stay clustered.
// The result is never below last+1.
func (s *Scheduler) fuzz(ivl, last int) int {
	if ivl < 2 {
		return ivl
	}

	var fuzz int
	switch f := float64(ivl); {
	case ivl == 2:
		fuzz = 0
	case ivl < 7:
		fuzz = int(math.Max(1, 0.25*f))
	case ivl < 30:
		fuzz = int(math.Max(2, 0.15*f))
	default:
		fuzz = int(math.Max(4, 0.05*f))
	}

	s.mu.Lock()
	var fuzzed int
	if ivl == 2 {
		fuzzed = 2 + s.rand.IntN(2)
	} else {
		fuzzed = ivl - fuzz + s.rand.IntN(2*fuzz+1)
	}
	s.mu.Unlock()

	return max(fuzzed, last+1)
}

func (s *Scheduler) easeDelta(grade card.Grade) (float64, error) {
	switch grade {
	case card.GradeFailSevere, card.GradeFailMedium, card.GradeFail:
		return s.cfg.EaseLapse, nil
	case card.GradeHard:
		return s.cfg.EaseHard, nil
	case card.GradeGood:
		return s.cfg.EaseGood, nil
	case card.GradeEasy:
		return s.cfg.EaseEasy, nil
	default:
		return 0, fmt.Errorf("no ease delta for grade %v: %w", grade, ErrInvalidConfiguration)
	}
}

func (s *Scheduler) sanitizeEase(ease float64) float64 {
	return math.Max(ease, s.cfg.MinEase)
}

// sanitizeInterval applies the interval modifier to a freshly computed interval.
func (s *Scheduler) sanitizeInterval(days float64) int {
	return s.clampInterval(int(days * s.cfg.IntervalModifier))
}

func (s *Scheduler) clampInterval(days int) int {
	return min(max(days, 1), s.cfg.MaxInterval)
}

// Intn returns a uniform integer in [0, n) from the scheduler's random source.
func (s *Scheduler) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.IntN(n)
}

// Shuffle permutes n elements with swap using the scheduler's random source.
func (s *Scheduler) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand.Shuffle(n, swap)
}
