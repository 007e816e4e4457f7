// Package prefetch provides a list that streams rows from storage in two lazy tiers:
// shallow rows are loaded page by page, and the expensive columns of the rows about
// to be consumed are hydrated in the background.
package prefetch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Status is the state of a List.
type Status int

const (
	StatusNew Status = iota
	StatusMoveNext
	StatusMoveNextEndOfStore
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusMoveNext:
		return "move-next"
	case StatusMoveNextEndOfStore:
		return "move-next-end-of-store"
	case StatusComplete:
		return "complete"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Unbounded disables the index cap.
const Unbounded = -1

const (
	keyInit    = "init"
	keyMore    = "more"
	keyFurther = "further"
)

// Source supplies the rows and the prefetch policy of a List.
// LoadMore and FurtherLoad are never called concurrently with themselves.
type Source[T any] interface {
	// MaxIndexLoadThreshold caps how many items the list hands out, or returns Unbounded.
	MaxIndexLoadThreshold() int
	// NextLoadThreshold returns the index from which a background load of the next page
	// starts, given the number of buffered items.
	NextLoadThreshold(buffered int) int
	// NextFurtherLoadThreshold returns the index from which a background hydration
	// starts, given the further loaded index.
	NextFurtherLoadThreshold(furtherLoaded int) int
	// FurtherLoadBatch is the number of items hydrated per further load.
	FurtherLoadBatch() int
	// Count returns the number of stored rows the list would stream.
	Count(ctx context.Context) (int, error)
	// LoadMore fetches the next page of shallow rows. exhausted reports that no rows remain.
	LoadMore(ctx context.Context, first bool) (items []T, exhausted bool, err error)
	// FurtherLoad fetches the lazy columns of the rows with the given keys.
	FurtherLoad(ctx context.Context, keys []int64) ([]T, error)
	// Less orders the unread items.
	Less(a, b T) bool
}

// Hydrator identifies items and moves their lazy columns in and out.
type Hydrator[T any] interface {
	Key(item T) int64
	Merge(dst, hydrated T)
	Unhydrate(item T)
}

type entry[T any] struct {
	item     T
	hydrated bool
}

// List is a cursor over a storage-backed sequence.
// Items up to and including Index have been consumed; items after it are unread.
type List[T any] struct {
	name string
	src  Source[T]
	hyd  Hydrator[T]

	loads singleflight.Group
	bg    sync.WaitGroup

	mu         sync.Mutex
	status     Status
	entries    []entry[T]
	index      int
	seen       map[int64]struct{}
	total      int
	loadedOnce bool
	// initDone is set once the first page is buffered
	initDone bool
	// wantCurrent makes the next further load start at the current item
	wantCurrent bool
	bgCtx       context.Context
}

// New creates an uninitialized List. name is used in logs.
func New[T any](name string, src Source[T], hyd Hydrator[T]) *List[T] {
	return &List[T]{
		name:  name,
		src:   src,
		hyd:   hyd,
		index: -1,
		seen:  make(map[int64]struct{}),
	}
}

func (l *List[T]) Name() string {
	return l.name
}

func (l *List[T]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Initialize counts the stored rows and loads the first page without moving the cursor.
// Concurrent callers share one initialization and return once the first page is buffered.
func (l *List[T]) Initialize(ctx context.Context) error {
	l.mu.Lock()
	initialized := l.initDone
	l.mu.Unlock()
	if initialized {
		return nil
	}

	_, err, _ := l.loads.Do(keyInit, func() (any, error) {
		l.mu.Lock()
		if l.initDone {
			l.mu.Unlock()
			return nil, nil
		}
		l.bgCtx = context.WithoutCancel(ctx)
		l.mu.Unlock()

		total, err := l.src.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", l.name, err)
		}

		l.mu.Lock()
		l.total = total
		if l.status == StatusNew {
			l.status = StatusMoveNext
		}
		l.mu.Unlock()

		if err := l.loadMore(ctx); err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.initDone = true
		l.mu.Unlock()
		return nil, nil
	})
	return err
}

// MoveNext advances the cursor and reports whether a current item is available.
// It blocks only when the next item is not loaded or not hydrated yet.
func (l *List[T]) MoveNext(ctx context.Context) (bool, error) {
	if err := l.Initialize(ctx); err != nil {
		return false, err
	}

	for {
		l.mu.Lock()
		if l.status == StatusComplete {
			l.mu.Unlock()
			return false, nil
		}

		next := l.index + 1
		if limit := l.src.MaxIndexLoadThreshold(); limit != Unbounded && next >= limit {
			l.completeLocked()
			l.mu.Unlock()
			return false, nil
		}

		if next < len(l.entries) {
			if !l.entries[next].hydrated {
				l.mu.Unlock()
				if err := l.awaitFurtherLoad(ctx); err != nil {
					return false, err
				}
				continue
			}
			l.advanceLocked()
			l.mu.Unlock()
			return true, nil
		}

		if l.status == StatusMoveNextEndOfStore {
			l.completeLocked()
			l.mu.Unlock()
			return false, nil
		}
		l.mu.Unlock()

		if err := l.awaitLoadMore(ctx); err != nil {
			return false, err
		}
	}
}

func (l *List[T]) advanceLocked() {
	if l.index >= 0 {
		l.releaseLocked(l.index)
	}
	l.index++
	l.kickBackgroundLocked()
}

func (l *List[T]) completeLocked() {
	if l.index >= 0 && l.index < len(l.entries) {
		l.releaseLocked(l.index)
	}
	l.status = StatusComplete
}

func (l *List[T]) releaseLocked(i int) {
	if l.entries[i].hydrated && l.hyd != nil {
		l.hyd.Unhydrate(l.entries[i].item)
	}
	l.entries[i].hydrated = false
}

// kickBackgroundLocked starts background loads once the cursor passes the source thresholds.
func (l *List[T]) kickBackgroundLocked() {
	if l.status == StatusMoveNext && l.index >= l.src.NextLoadThreshold(len(l.entries)) {
		l.background(keyMore, l.loadMore)
	}
	furtherLoaded := l.furtherLoadedIndexLocked()
	if furtherLoaded < len(l.entries)-1 && l.index >= l.src.NextFurtherLoadThreshold(furtherLoaded) {
		l.background(keyFurther, l.furtherLoad)
	}
}

func (l *List[T]) background(key string, fn func(ctx context.Context) error) {
	ctx := l.bgCtx
	l.bg.Add(1)
	go func() {
		defer l.bg.Done()
		_, err, _ := l.loads.Do(key, func() (any, error) {
			return nil, fn(ctx)
		})
		if err != nil {
			// the next blocking MoveNext retries the load
			slog.Default().Warn("background load failed",
				"list", l.name,
				"load", key,
				"error", err)
		}
	}()
}

// Wait blocks until background loads finish.
func (l *List[T]) Wait() {
	l.bg.Wait()
}

func (l *List[T]) awaitLoadMore(ctx context.Context) error {
	_, err, _ := l.loads.Do(keyMore, func() (any, error) {
		return nil, l.loadMore(ctx)
	})
	return err
}

func (l *List[T]) awaitFurtherLoad(ctx context.Context) error {
	_, err, _ := l.loads.Do(keyFurther, func() (any, error) {
		return nil, l.furtherLoad(ctx)
	})
	return err
}

func (l *List[T]) loadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.status != StatusMoveNext {
		l.mu.Unlock()
		return nil
	}
	first := !l.loadedOnce
	l.mu.Unlock()

	items, exhausted, err := l.src.LoadMore(ctx, first)
	if err != nil {
		return fmt.Errorf("load more %s: %w", l.name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadedOnce = true
	added := 0
	for _, item := range items {
		if l.appendLocked(item, false) {
			added++
		}
	}
	if added > 0 {
		l.sortTailLocked(l.index + 1)
	}
	if exhausted && l.status == StatusMoveNext {
		l.status = StatusMoveNextEndOfStore
	}
	slog.Default().Debug("loaded more items",
		"list", l.name,
		"added", added,
		"buffered", len(l.entries),
		"exhausted", exhausted)
	return nil
}

func (l *List[T]) appendLocked(item T, hydrated bool) bool {
	key := l.key(item)
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	l.entries = append(l.entries, entry[T]{item: item, hydrated: hydrated})
	return true
}

func (l *List[T]) key(item T) int64 {
	return l.hyd.Key(item)
}

// furtherLoad hydrates the next batch of unhydrated unread items.
// The current item is included only when EnsureCurrentHydrated asked for it.
func (l *List[T]) furtherLoad(ctx context.Context) error {
	l.mu.Lock()
	start := l.index + 1
	if l.wantCurrent && l.index >= 0 {
		start = l.index
	}
	l.wantCurrent = false
	var keys []int64
	for i := start; i < len(l.entries) && len(keys) < l.src.FurtherLoadBatch(); i++ {
		if !l.entries[i].hydrated {
			keys = append(keys, l.key(l.entries[i].item))
		}
	}
	l.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}

	rows, err := l.src.FurtherLoad(ctx, keys)
	if err != nil {
		return fmt.Errorf("further load %s: %w", l.name, err)
	}

	hydrated := make(map[int64]T, len(rows))
	for _, row := range rows {
		hydrated[l.key(row)] = row
	}
	requested := make(map[int64]struct{}, len(keys))
	for _, k := range keys {
		requested[k] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		e := &l.entries[i]
		if e.hydrated {
			continue
		}
		k := l.key(e.item)
		if _, ok := requested[k]; !ok {
			continue
		}
		// rows deleted meanwhile keep their shallow columns
		if row, ok := hydrated[k]; ok {
			l.hyd.Merge(e.item, row)
		}
		e.hydrated = true
	}
	return nil
}

func (l *List[T]) sortTailLocked(from int) {
	if from < 0 {
		from = 0
	}
	if from >= len(l.entries) {
		return
	}
	slices.SortStableFunc(l.entries[from:], func(a, b entry[T]) int {
		switch {
		case l.src.Less(a.item, b.item):
			return -1
		case l.src.Less(b.item, a.item):
			return 1
		default:
			return 0
		}
	})
}

// Current returns the item under the cursor.
func (l *List[T]) Current() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	if l.status == StatusNew || l.status == StatusComplete {
		return zero, false
	}
	if l.index < 0 || l.index >= len(l.entries) {
		return zero, false
	}
	return l.entries[l.index].item, true
}

func (l *List[T]) Index() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index
}

// Len returns the number of buffered items, consumed ones included.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Available returns the number of buffered unread items.
func (l *List[T]) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusComplete {
		return 0
	}
	return l.capLocked(len(l.entries) - l.index - 1)
}

// Remaining returns how many items are still to come after the current one,
// counting rows not loaded yet.
func (l *List[T]) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.status {
	case StatusNew, StatusComplete:
		return 0
	case StatusMoveNextEndOfStore:
		return l.capLocked(len(l.entries) - l.index - 1)
	default:
		return l.capLocked(max(l.total, len(l.entries)) - l.index - 1)
	}
}

func (l *List[T]) capLocked(n int) int {
	if limit := l.src.MaxIndexLoadThreshold(); limit != Unbounded {
		n = min(n, limit-l.index-1)
	}
	return max(n, 0)
}

// FurtherLoadedIndex returns the last index of the hydrated run following the cursor.
func (l *List[T]) FurtherLoadedIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.furtherLoadedIndexLocked()
}

func (l *List[T]) furtherLoadedIndexLocked() int {
	i := l.index
	for i+1 < len(l.entries) && l.entries[i+1].hydrated {
		i++
	}
	return i
}

// Add registers an in-memory item in the unread tail.
// A completed list becomes readable again. It returns false for known items.
func (l *List[T]) Add(item T, hydrated bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusNew {
		return false
	}
	if !l.appendLocked(item, hydrated) {
		return false
	}
	l.total++
	if l.status == StatusComplete {
		l.status = StatusMoveNextEndOfStore
	}
	l.sortTailLocked(l.index + 1)
	return true
}

// ResortFromCurrent re-sorts the current item together with the unread tail,
// so that a current item that became later than its successors gives way.
func (l *List[T]) ResortFromCurrent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sortTailLocked(l.index)
}

// EnsureCurrentHydrated hydrates the current item when it is not hydrated yet.
func (l *List[T]) EnsureCurrentHydrated(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.index < 0 || l.index >= len(l.entries) || l.entries[l.index].hydrated {
			l.mu.Unlock()
			return nil
		}
		l.wantCurrent = true
		l.mu.Unlock()
		if err := l.awaitFurtherLoad(ctx); err != nil {
			return err
		}
	}
}

// DismissWhere moves every unread item matching pred into the consumed region
// in front of the current item, so the items are never handed out while the
// current item stays current. Items at or past the index cap would never be
// handed out and are left in place. It returns the moved items.
func (l *List[T]) DismissWhere(pred func(item T) bool) []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == StatusNew {
		return nil
	}

	end := len(l.entries)
	if limit := l.src.MaxIndexLoadThreshold(); limit != Unbounded {
		end = min(end, limit)
	}
	var moved []T
	for j := l.index + 1; j < end; j++ {
		if !pred(l.entries[j].item) {
			continue
		}
		at := max(l.index, 0)
		e := l.entries[j]
		copy(l.entries[at+1:j+1], l.entries[at:j])
		l.entries[at] = e
		l.index++
		l.releaseLocked(at)
		moved = append(moved, e.item)
	}
	return moved
}
