package prefetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	id      int64
	rank    int
	group   int
	payload string
}

type fakeHydrator struct{}

func (fakeHydrator) Key(i *fakeItem) int64         { return i.id }
func (fakeHydrator) Merge(dst, hydrated *fakeItem) { dst.payload = hydrated.payload }
func (fakeHydrator) Unhydrate(i *fakeItem)         { i.payload = "" }

func payloadOf(id int64) string {
	return fmt.Sprintf("payload-%d", id)
}

func never(int) int {
	return math.MaxInt
}

func newRows(n int, rank func(id int64) int) []*fakeItem {
	rows := make([]*fakeItem, n)
	for i := range rows {
		id := int64(i + 1)
		rows[i] = &fakeItem{id: id, rank: rank(id)}
	}
	return rows
}

type fakeSource struct {
	rows             []*fakeItem
	pageSize         int
	limit            int
	batch            int
	loadThreshold    func(buffered int) int
	furtherThreshold func(furtherLoaded int) int
	// block holds every LoadMore after the first one until closed
	block        chan struct{}
	blockFirst   chan struct{}
	blockFurther chan struct{}
	loadErr      error

	mu           sync.Mutex
	cursor       int
	loadCalls    atomic.Int32
	furtherCalls atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
}

func (s *fakeSource) MaxIndexLoadThreshold() int { return s.limit }

func (s *fakeSource) NextLoadThreshold(buffered int) int {
	if s.loadThreshold == nil {
		return never(buffered)
	}
	return s.loadThreshold(buffered)
}

func (s *fakeSource) NextFurtherLoadThreshold(furtherLoaded int) int {
	if s.furtherThreshold == nil {
		return never(furtherLoaded)
	}
	return s.furtherThreshold(furtherLoaded)
}

func (s *fakeSource) FurtherLoadBatch() int { return s.batch }

func (s *fakeSource) Count(ctx context.Context) (int, error) {
	return len(s.rows), nil
}

func (s *fakeSource) LoadMore(ctx context.Context, first bool) ([]*fakeItem, bool, error) {
	s.loadCalls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if first && s.blockFirst != nil {
		<-s.blockFirst
	}
	if !first && s.block != nil {
		<-s.block
	}
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	end := min(s.cursor+s.pageSize, len(s.rows))
	var page []*fakeItem
	for _, r := range s.rows[s.cursor:end] {
		page = append(page, &fakeItem{id: r.id, rank: r.rank, group: r.group})
	}
	s.cursor = end
	return page, s.cursor >= len(s.rows), nil
}

func (s *fakeSource) FurtherLoad(ctx context.Context, keys []int64) ([]*fakeItem, error) {
	s.furtherCalls.Add(1)
	if s.blockFurther != nil {
		<-s.blockFurther
	}
	hydrated := make([]*fakeItem, len(keys))
	for i, k := range keys {
		hydrated[i] = &fakeItem{id: k, payload: payloadOf(k)}
	}
	return hydrated, nil
}

func (s *fakeSource) Less(a, b *fakeItem) bool { return a.rank < b.rank }

func drain(t *testing.T, l *List[*fakeItem]) []int64 {
	t.Helper()
	var ids []int64
	for {
		ok, err := l.MoveNext(context.Background())
		require.NoError(t, err)
		if !ok {
			return ids
		}
		cur, ok := l.Current()
		require.True(t, ok)
		ids = append(ids, cur.id)
	}
}

func TestList_StreamsPagesSortedAndHydrated(t *testing.T) {
	src := &fakeSource{
		rows:     newRows(25, func(id int64) int { return -int(id) }),
		pageSize: 10,
		limit:    Unbounded,
		batch:    4,
	}
	l := New[*fakeItem]("test", src, fakeHydrator{})
	ctx := context.Background()

	require.NoError(t, l.Initialize(ctx))
	assert.Equal(t, StatusMoveNext, l.Status())
	assert.Equal(t, 25, l.Remaining())
	assert.Equal(t, 10, l.Available())
	_, ok := l.Current()
	assert.False(t, ok, "initialize does not move the cursor")

	var (
		ids  []int64
		prev *fakeItem
	)
	for {
		ok, err := l.MoveNext(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		cur, ok := l.Current()
		require.True(t, ok)
		assert.Equal(t, payloadOf(cur.id), cur.payload, "current item is hydrated")
		if prev != nil {
			assert.Empty(t, prev.payload, "leaving an item unhydrates it")
		}
		prev = cur
		ids = append(ids, cur.id)
	}

	want := []int64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 25, 24, 23, 22, 21}
	assert.Equal(t, want, ids)
	assert.Equal(t, StatusComplete, l.Status())
	assert.Equal(t, int32(3), src.loadCalls.Load())
	_, ok = l.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, l.Remaining())

	ok, err := l.MoveNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(3), src.loadCalls.Load(), "a complete list never loads again")
}

func TestList_MaxIndexCap(t *testing.T) {
	src := &fakeSource{
		rows:     newRows(10, func(id int64) int { return int(id) }),
		pageSize: 10,
		limit:    3,
		batch:    10,
	}
	l := New[*fakeItem]("capped", src, fakeHydrator{})

	require.NoError(t, l.Initialize(context.Background()))
	assert.Equal(t, 3, l.Remaining())
	assert.Equal(t, []int64{1, 2, 3}, drain(t, l))
	assert.Equal(t, StatusComplete, l.Status())
}

func TestList_ZeroCap(t *testing.T) {
	src := &fakeSource{rows: newRows(2, func(int64) int { return 0 }), pageSize: 10, limit: 0, batch: 10}
	l := New[*fakeItem]("empty budget", src, fakeHydrator{})

	assert.Empty(t, drain(t, l))
	assert.Equal(t, 0, l.Remaining())
}

func TestList_EmptyStore(t *testing.T) {
	src := &fakeSource{pageSize: 10, limit: Unbounded, batch: 10}
	l := New[*fakeItem]("empty", src, fakeHydrator{})

	assert.Empty(t, drain(t, l))
	assert.Equal(t, StatusComplete, l.Status())
	assert.Equal(t, int32(1), src.loadCalls.Load())
}

func TestList_SingleFlightLoadMore(t *testing.T) {
	src := &fakeSource{
		rows:     newRows(4, func(id int64) int { return int(id) }),
		pageSize: 2,
		limit:    Unbounded,
		batch:    10,
		block:    make(chan struct{}),
	}
	l := New[*fakeItem]("single-flight", src, fakeHydrator{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.MoveNext(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, int32(1), src.loadCalls.Load())

	const callers = 8
	var (
		wg    sync.WaitGroup
		moved atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.MoveNext(ctx)
			assert.NoError(t, err)
			if ok {
				moved.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return src.loadCalls.Load() == 2 }, time.Second, time.Millisecond)
	// let the other callers reach the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Equal(t, int32(2), src.loadCalls.Load())
	assert.Equal(t, int32(2), moved.Load(), "each loaded item is handed out once")
	assert.Equal(t, StatusComplete, l.Status())
}

func TestList_SingleFlightFurtherLoad(t *testing.T) {
	src := &fakeSource{
		rows:         newRows(8, func(id int64) int { return int(id) }),
		pageSize:     8,
		limit:        Unbounded,
		batch:        8,
		blockFurther: make(chan struct{}),
	}
	l := New[*fakeItem]("further", src, fakeHydrator{})
	ctx := context.Background()
	require.NoError(t, l.Initialize(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.MoveNext(ctx)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return src.furtherCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.blockFurther)
	wg.Wait()

	assert.Equal(t, int32(1), src.furtherCalls.Load())
	assert.Equal(t, 3, l.Index())
	assert.Equal(t, 7, l.FurtherLoadedIndex())
}

func TestList_BackgroundPrefetch(t *testing.T) {
	src := &fakeSource{
		rows:             newRows(30, func(id int64) int { return int(id) }),
		pageSize:         10,
		limit:            Unbounded,
		batch:            5,
		loadThreshold:    func(buffered int) int { return buffered - 5 },
		furtherThreshold: func(furtherLoaded int) int { return furtherLoaded - 2 },
	}
	l := New[*fakeItem]("background", src, fakeHydrator{})

	ids := drain(t, l)
	l.Wait()

	require.Len(t, ids, 30)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
	assert.Equal(t, int32(3), src.loadCalls.Load())
}

func TestList_LoadErrorIsRetried(t *testing.T) {
	src := &fakeSource{
		rows:     newRows(4, func(id int64) int { return int(id) }),
		pageSize: 2,
		limit:    Unbounded,
		batch:    2,
	}
	l := New[*fakeItem]("flaky", src, fakeHydrator{})
	ctx := context.Background()
	require.NoError(t, l.Initialize(ctx))
	for i := 0; i < 2; i++ {
		ok, err := l.MoveNext(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	src.loadErr = errors.New("connection reset")
	_, err := l.MoveNext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	src.loadErr = nil
	assert.Equal(t, []int64{3, 4}, drain(t, l))
}

func TestList_DismissWhere(t *testing.T) {
	rows := newRows(6, func(id int64) int { return int(id) })
	rows[2].group = 1 // id 3
	rows[4].group = 1 // id 5
	src := &fakeSource{rows: rows, pageSize: 10, limit: Unbounded, batch: 10}
	l := New[*fakeItem]("dismiss", src, fakeHydrator{})
	ctx := context.Background()

	ok, err := l.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, l.Remaining())
	assert.Equal(t, 5, l.FurtherLoadedIndex())

	moved := l.DismissWhere(func(i *fakeItem) bool { return i.group == 1 })
	require.Len(t, moved, 2)
	assert.Equal(t, int64(3), moved[0].id)
	assert.Equal(t, int64(5), moved[1].id)
	assert.Empty(t, moved[0].payload, "dismissed items are unhydrated")
	assert.Equal(t, 2, l.Index())
	cur, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, int64(1), cur.id, "the current item stays current")
	assert.Equal(t, 3, l.Remaining())
	assert.Equal(t, 5, l.FurtherLoadedIndex(), "hydrated items keep their flags")

	assert.Equal(t, []int64{2, 4, 6}, drain(t, l))
}

func TestList_DismissWhereKeepsItemsPastTheCap(t *testing.T) {
	rows := newRows(6, func(id int64) int { return int(id) })
	rows[1].group = 1 // id 2
	rows[4].group = 1 // id 5
	src := &fakeSource{rows: rows, pageSize: 10, limit: 3, batch: 10}
	l := New[*fakeItem]("capped", src, fakeHydrator{})
	ctx := context.Background()

	ok, err := l.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	moved := l.DismissWhere(func(i *fakeItem) bool { return i.group == 1 })
	require.Len(t, moved, 1)
	assert.Equal(t, int64(2), moved[0].id)
	assert.Equal(t, 1, l.Index())
	assert.Equal(t, 1, l.Remaining(), "only the dismissed item inside the cap uses a slot")

	assert.Equal(t, []int64{3}, drain(t, l))
}

func TestList_AddAndResort(t *testing.T) {
	src := &fakeSource{
		rows:     []*fakeItem{{id: 1, rank: 10}, {id: 2, rank: 30}},
		pageSize: 10,
		limit:    Unbounded,
		batch:    10,
	}
	l := New[*fakeItem]("learning", src, fakeHydrator{})
	ctx := context.Background()

	assert.False(t, l.Add(&fakeItem{id: 9}, true), "uninitialized lists reject items")
	assert.Equal(t, []int64{1, 2}, drain(t, l))
	assert.Equal(t, StatusComplete, l.Status())

	// an in-memory item revives a complete list
	assert.True(t, l.Add(&fakeItem{id: 3, rank: 20}, false))
	assert.False(t, l.Add(&fakeItem{id: 3, rank: 20}, false), "known items are ignored")
	assert.True(t, l.Add(&fakeItem{id: 4, rank: 15, payload: payloadOf(4)}, true))
	assert.Equal(t, StatusMoveNextEndOfStore, l.Status())
	assert.Equal(t, 2, l.Remaining())

	ok, err := l.MoveNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	cur, _ := l.Current()
	assert.Equal(t, int64(4), cur.id)

	// the current item becomes later than the tail
	cur.rank = 50
	l.ResortFromCurrent()
	cur, _ = l.Current()
	assert.Equal(t, int64(3), cur.id)
	assert.Empty(t, cur.payload)
	require.NoError(t, l.EnsureCurrentHydrated(ctx))
	assert.Equal(t, payloadOf(3), cur.payload)

	assert.Equal(t, []int64{4}, drain(t, l))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "new", StatusNew.String())
	assert.Equal(t, "move-next", StatusMoveNext.String())
	assert.Equal(t, "move-next-end-of-store", StatusMoveNextEndOfStore.String())
	assert.Equal(t, "complete", StatusComplete.String())
}

func TestList_ConcurrentMoveNextWaitsForFirstPage(t *testing.T) {
	src := &fakeSource{
		rows:       newRows(5, func(id int64) int { return int(id) }),
		pageSize:   3,
		limit:      Unbounded,
		batch:      5,
		blockFirst: make(chan struct{}),
	}
	l := New[*fakeItem]("test", src, fakeHydrator{})

	var wg sync.WaitGroup
	results := make([]bool, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = l.MoveNext(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return src.loadCalls.Load() >= 1 }, time.Second, time.Millisecond)
	// give the other callers time to reach the list while the first page is loading
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), src.loadCalls.Load(), "only the first page is requested while it loads")
	close(src.blockFirst)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i])
	}
	assert.Equal(t, int32(1), src.maxInFlight.Load())
	assert.Equal(t, 2, l.Index(), "each caller consumed one item")
}
