package budget

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveRejectsOverCap(t *testing.T) {
	l := New(10, nil)

	_, err := l.Reserve("gpt", 7)
	require.NoError(t, err)

	_, err = l.Reserve("gpt", 5)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestRecordReconcilesReservation(t *testing.T) {
	l := New(10, nil)

	ticket, err := l.Reserve("gpt", 5)
	require.NoError(t, err)

	require.NoError(t, l.Record(ticket, 2))

	snap := l.Snapshot()
	assert.Equal(t, 2.0, snap.Spent)
	assert.Equal(t, 0.0, snap.Reserved)
	assert.Equal(t, 1, snap.CallsRecorded)
}

func TestReleaseReturnsReservation(t *testing.T) {
	l := New(10, nil)

	ticket, err := l.Reserve("gpt", 5)
	require.NoError(t, err)
	require.NoError(t, l.Release(ticket))

	snap := l.Snapshot()
	assert.Equal(t, 0.0, snap.Spent)
	assert.Equal(t, 0.0, snap.Reserved)

	// The released estimate is available again.
	_, err = l.Reserve("gpt", 10)
	assert.NoError(t, err)
}

func TestTicketCannotBeFinalizedTwice(t *testing.T) {
	l := New(10, nil)
	ticket, err := l.Reserve("gpt", 5)
	require.NoError(t, err)

	require.NoError(t, l.Record(ticket, 1))
	assert.ErrorIs(t, l.Record(ticket, 1), ErrTicketFinalized)
	assert.ErrorIs(t, l.Release(ticket), ErrTicketFinalized)
}

func TestConcurrentReservationsNeverExceedCap(t *testing.T) {
	l := New(100, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ticket, err := l.Reserve("gpt", 3); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
				_ = l.Record(ticket, 3)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, float64(granted)*3, 100.0)
	snap := l.Snapshot()
	assert.LessOrEqual(t, snap.Spent, 100.0)
}
