// Package collection multiplexes the new, learning and due card lists into one
// review stream. It runs the scheduler on answers, persists the review history
// in the background and keeps siblings of answered cards out of the session.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/at-ishikawa/cardreview/internal/card"
	"github.com/at-ishikawa/cardreview/internal/cardlist"
	"github.com/at-ishikawa/cardreview/internal/config"
	"github.com/at-ishikawa/cardreview/internal/prefetch"
	"github.com/at-ishikawa/cardreview/internal/review"
	"github.com/at-ishikawa/cardreview/internal/scheduler"
)

// ErrNoCurrentCard is returned by Answer and Dismiss when no card is selected.
var ErrNoCurrentCard = fmt.Errorf("no current card: %w", scheduler.ErrInvalidOperation)

// StateMask selects lists for CountByState.
type StateMask int

const (
	MaskNew StateMask = 1 << iota
	MaskLearning
	MaskDue

	MaskAll = MaskNew | MaskLearning | MaskDue
)

// Deps are the storage collaborators of a collection.
type Deps struct {
	Cards    card.Repository
	Logs     review.LogRepository
	Hydrator prefetch.Hydrator[*card.Card]
}

type resumeFunc func(ctx context.Context) (bool, error)

// ReviewCollection is a review session over a card collection.
// It is meant to be driven by a single presentation goroutine.
type ReviewCollection struct {
	deps      Deps
	cfg       *config.CollectionConfig
	scheduler *scheduler.Scheduler
	ids       *card.IDGenerator
	now       func() time.Time
	listCfg   cardlist.Config

	mu        sync.Mutex
	budgets   review.Budgets
	lists     []cardlist.CardList
	learning  *cardlist.LearningCardList
	resume    map[cardlist.Kind]resumeFunc
	active    cardlist.CardList
	current   *card.Card
	evalStart time.Time

	persisting  sync.WaitGroup
	lastPersist chan struct{}
	errMu       sync.Mutex
	errs        []error
}

type Option func(*ReviewCollection)

// WithClock sets the clock used by the collection and its scheduler.
func WithClock(now func() time.Time) Option {
	return func(c *ReviewCollection) {
		c.now = now
	}
}

// WithRand sets the random source of list selection and interval fuzzing.
func WithRand(r *rand.Rand) Option {
	return func(c *ReviewCollection) {
		c.scheduler = scheduler.New(c.cfg, scheduler.WithRand(r), scheduler.WithClock(c.clock))
	}
}

// WithListConfig tunes the paging of the card lists.
func WithListConfig(cfg cardlist.Config) Option {
	return func(c *ReviewCollection) {
		c.listCfg = cfg
	}
}

// New creates a collection. Initialize must be called before reviewing.
func New(deps Deps, cfg *config.CollectionConfig, opts ...Option) (*ReviewCollection, error) {
	if deps.Cards == nil || deps.Logs == nil || deps.Hydrator == nil {
		return nil, fmt.Errorf("collection dependencies are missing: %w", scheduler.ErrInvalidConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", scheduler.ErrInvalidConfiguration, err)
	}

	c := &ReviewCollection{
		deps:    deps,
		cfg:     cfg,
		now:     time.Now,
		listCfg: cardlist.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scheduler == nil {
		c.scheduler = scheduler.New(cfg, scheduler.WithClock(c.clock))
	}
	c.ids = card.NewIDGenerator(0, c.clock)
	return c, nil
}

// clock defers to c.now so options can be applied in any order.
func (c *ReviewCollection) clock() time.Time {
	return c.now()
}

// Initialize computes today's budgets, loads the three lists in parallel and
// selects the first card. It returns false when nothing is to be reviewed today.
func (c *ReviewCollection) Initialize(ctx context.Context) (bool, error) {
	now := c.now()
	budgets, err := review.ComputeBudgets(ctx, c.deps.Logs, c.cfg, now)
	if err != nil {
		return false, fmt.Errorf("compute budgets: %w", err)
	}

	opts := cardlist.Options{
		Config:    c.listCfg,
		Hydrator:  c.deps.Hydrator,
		Dismissed: cardlist.NewDismissals(),
		Tomorrow:  card.StartOfTomorrow(now),
	}
	var rnd *rand.Rand
	if c.cfg.NewCardOrder == config.NewCardOrderRandom {
		rnd = rand.New(rand.NewPCG(uint64(c.scheduler.Intn(math.MaxInt)), uint64(c.scheduler.Intn(math.MaxInt))))
	}
	newList := cardlist.NewNewCardList(c.deps.Cards, budgets.NewRemaining(), rnd, opts)
	learning := cardlist.NewLearningCardList(c.deps.Cards, opts)
	due := cardlist.NewDueCardList(c.deps.Cards, budgets.DueRemaining(), opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.budgets = budgets
	c.lists = []cardlist.CardList{newList, learning, due}
	c.learning = learning
	c.resume = map[cardlist.Kind]resumeFunc{
		cardlist.KindNew:      newList.MoveNext,
		cardlist.KindLearning: learning.MoveNext,
		cardlist.KindDue:      due.MoveNext,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range c.lists {
		g.Go(func() error {
			if err := l.Initialize(gctx); err != nil {
				return fmt.Errorf("initialize %s list: %w", l.Kind(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	slog.Default().Debug("review collection initialized",
		"new_budget", budgets.NewRemaining(),
		"due_budget", budgets.DueRemaining(),
		"new", newList.ReviewCount(),
		"learning", learning.ReviewCount(),
		"due", due.ReviewCount())
	return c.selectNextLocked(ctx)
}

// Budgets returns the budgets computed by Initialize.
func (c *ReviewCollection) Budgets() review.Budgets {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budgets
}

// Current returns the card under review, or nil when the session is over.
func (c *ReviewCollection) Current() *card.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// CurrentKind returns the list the current card comes from.
func (c *ReviewCollection) CurrentKind() (cardlist.Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	return c.active.Kind(), true
}

// Answer grades the current card and selects the next one.
// It returns false when no card is left for today.
func (c *ReviewCollection) Answer(ctx context.Context, grade card.Grade) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.current
	if cur == nil {
		return false, ErrNoCurrentCard
	}

	now := c.now()
	elapsed := now.Sub(c.evalStart)
	// logs are keyed by the time the card was shown
	log := review.Begin(c.ids.NextAt(c.evalStart), cur)
	prevState := cur.PracticeState

	action, err := c.scheduler.Answer(cur, grade)
	if err != nil {
		return false, fmt.Errorf("answer card %d: %w", cur.ID, err)
	}
	if err := log.Complete(cur, grade, elapsed, c.cfg.MaxEvalTime); err != nil {
		return false, fmt.Errorf("complete review log of card %d: %w", cur.ID, err)
	}
	c.active = nil
	c.current = nil

	if cur.IsLearning() && prevState < card.StateLearning {
		// the learning list owns its items, so it gets a copy
		c.learning.Register(cur.Clone())
	}

	c.persist(ctx, cur.Clone(), log, action, card.At(card.StartOfTomorrow(now)))

	for _, l := range c.lists {
		l.DismissSiblings(cur)
	}
	return c.selectNextLocked(ctx)
}

// Dismiss drops the current card for the rest of the session and selects the next one.
func (c *ReviewCollection) Dismiss(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false, ErrNoCurrentCard
	}
	active := c.active
	c.active = nil
	c.current = nil
	active.Dismiss()
	return c.selectNextLocked(ctx)
}

// SelectNext picks the list of the next card at random, weighted by the number
// of cards each list can still offer.
func (c *ReviewCollection) SelectNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectNextLocked(ctx)
}

func (c *ReviewCollection) selectNextLocked(ctx context.Context) (bool, error) {
	c.active = nil
	c.current = nil
	for {
		counts := make([]int, len(c.lists))
		total := 0
		for i, l := range c.lists {
			counts[i] = l.ReviewCount()
			total += counts[i]
		}
		if total == 0 {
			return false, nil
		}

		draw := c.scheduler.Intn(total)
		var chosen cardlist.CardList
		for i, l := range c.lists {
			if draw < counts[i] {
				chosen = l
				break
			}
			draw -= counts[i]
		}

		ok, err := c.resume[chosen.Kind()](ctx)
		if err != nil {
			return false, fmt.Errorf("move to next %s card: %w", chosen.Kind(), err)
		}
		if !ok {
			// the list ran out, so its count is zero on the next draw
			continue
		}
		c.active = chosen
		c.current = chosen.Current()
		c.evalStart = c.now()
		return true, nil
	}
}

// CountByState sums the review counts of the lists selected by mask.
func (c *ReviewCollection) CountByState(mask StateMask) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lists {
		if mask&maskOf(l.Kind()) != 0 {
			n += l.ReviewCount()
		}
	}
	return n
}

func maskOf(k cardlist.Kind) StateMask {
	switch k {
	case cardlist.KindNew:
		return MaskNew
	case cardlist.KindLearning:
		return MaskLearning
	case cardlist.KindDue:
		return MaskDue
	default:
		return 0
	}
}

// persist writes the review in the background. Reviews are written in answer order.
func (c *ReviewCollection) persist(ctx context.Context, snapshot *card.Card, log *review.Log, action scheduler.Action, tomorrow card.Timestamp) {
	ctx = context.WithoutCancel(ctx)
	prev := c.lastPersist
	done := make(chan struct{})
	c.lastPersist = done

	c.persisting.Add(1)
	go func() {
		defer c.persisting.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := c.write(ctx, snapshot, log, action, tomorrow); err != nil {
			slog.Default().Error("failed to persist a review",
				"card_id", snapshot.ID,
				"log_id", log.ID,
				"action", action,
				"error", err)
			c.errMu.Lock()
			c.errs = append(c.errs, err)
			c.errMu.Unlock()
		}
	}()
}

func (c *ReviewCollection) write(ctx context.Context, snapshot *card.Card, log *review.Log, action scheduler.Action, tomorrow card.Timestamp) error {
	if err := c.deps.Logs.Insert(ctx, []*review.Log{log}); err != nil {
		return fmt.Errorf("insert review log %d: %w", log.ID, err)
	}
	switch action {
	case scheduler.ActionDelete:
		if err := c.deps.Cards.Delete(ctx, snapshot.ID); err != nil {
			return fmt.Errorf("delete card %d: %w", snapshot.ID, err)
		}
	default:
		if err := c.deps.Cards.Update(ctx, snapshot); err != nil {
			return fmt.Errorf("update card %d: %w", snapshot.ID, err)
		}
	}
	deferred, err := c.deps.Cards.DeferSiblings(ctx, snapshot, tomorrow)
	if err != nil {
		return fmt.Errorf("defer siblings of card %d: %w", snapshot.ID, err)
	}
	if deferred > 0 {
		slog.Default().Debug("deferred sibling cards",
			"card_id", snapshot.ID,
			"note_id", snapshot.NoteID,
			"count", deferred)
	}
	return nil
}

// Wait blocks until background work finishes and returns the persistence
// errors collected since the previous call.
func (c *ReviewCollection) Wait() error {
	c.persisting.Wait()
	c.mu.Lock()
	lists := c.lists
	c.mu.Unlock()
	for _, l := range lists {
		l.Wait()
	}

	c.errMu.Lock()
	defer c.errMu.Unlock()
	err := errors.Join(c.errs...)
	c.errs = nil
	return err
}
