package blotter

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/police-blotter-api/models"
)

type memStore struct {
	mu       sync.Mutex
	docs     map[string]models.SequenceCounter
	loads    int
	loseNext int
	loadErr  error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]models.SequenceCounter{}}
}

func (m *memStore) Load(ctx context.Context, key string) (*models.SequenceCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	doc, ok := m.docs[key]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *memStore) Swap(ctx context.Context, prev *models.SequenceCounter, next models.SequenceCounter) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loseNext > 0 {
		m.loseNext--
		return false, nil
	}
	cur, ok := m.docs[next.PeriodKey]
	if prev == nil {
		if ok {
			return false, nil
		}
	} else if !ok || cur.LastNumber != prev.LastNumber || cur.Year != prev.Year || cur.Month != prev.Month {
		return false, nil
	}
	m.docs[next.PeriodKey] = next
	return true, nil
}

func testCounter(store Store) *Counter {
	c := NewCounter(store)
	c.InitialBackoff = time.Millisecond
	c.Now = func() time.Time { return time.Date(2025, time.October, 3, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestCounter_NextNumberSequential(t *testing.T) {
	c := testCounter(newMemStore())

	for i := int64(1); i <= 25; i++ {
		got, err := c.NextNumber(context.Background(), "2025-10")
		require.NoError(t, err)
		assert.True(t, IsWellFormed(got), got)

		year, month, number, ok := Parse(got)
		assert.True(t, ok)
		assert.Equal(t, 2025, year)
		assert.Equal(t, 10, month)
		assert.Equal(t, i, number)
	}
}

func TestCounter_FirstNumberOfPeriod(t *testing.T) {
	c := testCounter(newMemStore())

	got, err := c.Next(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "2025-10-000001", got)
}

func TestCounter_StalePeriodRecordRestarts(t *testing.T) {
	store := newMemStore()
	store.docs["2025-11"] = models.SequenceCounter{PeriodKey: "2025-11", Year: 2025, Month: 10, LastNumber: 41}
	c := testCounter(store)

	got, err := c.NextNumber(context.Background(), "2025-11")
	assert.NoError(t, err)
	assert.Equal(t, "2025-11-000001", got)
	assert.Equal(t, 11, store.docs["2025-11"].Month)
}

func TestCounter_PeriodsAreIndependent(t *testing.T) {
	c := testCounter(newMemStore())
	ctx := context.Background()

	a, _ := c.NextNumber(ctx, "2025-09")
	b, _ := c.NextNumber(ctx, "2025-10")
	a2, _ := c.NextNumber(ctx, "2025-09")

	assert.Equal(t, "2025-09-000001", a)
	assert.Equal(t, "2025-10-000001", b)
	assert.Equal(t, "2025-09-000002", a2)
}

func TestCounter_RetriesLostRaces(t *testing.T) {
	store := newMemStore()
	store.loseNext = 3
	c := testCounter(store)

	got, err := c.NextNumber(context.Background(), "2025-10")
	assert.NoError(t, err)
	assert.Equal(t, "2025-10-000001", got)
	assert.Equal(t, 4, store.loads)
}

func TestCounter_ContentionAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	store.loseNext = 100
	c := testCounter(store)

	_, err := c.NextNumber(context.Background(), "2025-10")
	assert.True(t, errors.Is(err, models.ErrCounterContention), err)
	assert.Equal(t, DefaultMaxAttempts, store.loads)
	assert.Empty(t, store.docs)
}

func TestCounter_StoreErrorIsNotRetried(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("mocked-error")
	c := testCounter(store)

	_, err := c.NextNumber(context.Background(), "2025-10")
	assert.EqualError(t, err, "mocked-error")
	assert.Equal(t, 1, store.loads)
}

func TestCounter_CancelledContextIsTimeout(t *testing.T) {
	store := newMemStore()
	store.loseNext = 100
	c := testCounter(store)
	c.InitialBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.NextNumber(ctx, "2025-10")
	assert.True(t, errors.Is(err, models.ErrTimeout), err)
}

func TestCounter_SequenceExhausted(t *testing.T) {
	store := newMemStore()
	store.docs["2025-10"] = models.SequenceCounter{PeriodKey: "2025-10", Year: 2025, Month: 10, LastNumber: MaxNumber}
	c := testCounter(store)

	_, err := c.NextNumber(context.Background(), "2025-10")
	assert.True(t, errors.Is(err, models.ErrSequenceExhausted), err)
}

func TestCounter_MalformedPeriod(t *testing.T) {
	c := testCounter(newMemStore())

	_, err := c.NextNumber(context.Background(), "2025-13")
	assert.True(t, errors.Is(err, models.ErrInvalidField), err)
}

// Concurrent callers must never share a number and successful issuances must
// form a gap-free run starting at 1.
func TestCounter_ConcurrentCallersGetDistinctContiguousNumbers(t *testing.T) {
	store := newMemStore()
	c := testCounter(store)
	c.MaxAttempts = 50

	const callers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
		failed  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.NextNumber(context.Background(), "2025-10")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errors.Is(err, models.ErrCounterContention), err)
				failed++
				return
			}
			_, _, n, ok := Parse(got)
			assert.True(t, ok)
			numbers = append(numbers, n)
		}()
	}
	wg.Wait()

	require.NotEmpty(t, numbers)
	assert.Equal(t, callers, len(numbers)+failed)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.Equal(t, int64(i+1), n)
	}
	assert.Equal(t, int64(len(numbers)), store.docs["2025-10"].LastNumber)
}

func TestCounter_ReleaseReissuesLatestNumber(t *testing.T) {
	c := testCounter(newMemStore())
	ctx := context.Background()

	first, err := c.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, first))

	again, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-10-000001", again)
}

func TestCounter_ReleaseAfterLaterNumberIsConflict(t *testing.T) {
	store := newMemStore()
	c := testCounter(store)
	ctx := context.Background()

	first, _ := c.Next(ctx)
	_, _ = c.Next(ctx)

	err := c.Release(ctx, first)
	assert.True(t, errors.Is(err, models.ErrConflict))
	assert.Equal(t, int64(2), store.docs["2025-10"].LastNumber)
}

func TestCounter_ReleaseMalformedNumber(t *testing.T) {
	c := testCounter(newMemStore())

	err := c.Release(context.Background(), "2025-10-1")
	assert.True(t, errors.Is(err, models.ErrInvalidField))
}

func TestCounter_ReleaseUnknownPeriodIsConflict(t *testing.T) {
	c := testCounter(newMemStore())

	err := c.Release(context.Background(), "2025-10-000003")
	assert.True(t, errors.Is(err, models.ErrConflict))
}
