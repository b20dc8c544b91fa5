package buffer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayneeseguin/logship/pkg/types"
)

func TestQueueFIFO(t *testing.T) {
	q := New(Options{})
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Write([]byte(fmt.Sprintf("msg-%d", i))))
	}
	assert.Equal(t, 100, q.Len())

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		item, err := q.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(item))
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueReadBlocksUntilWrite(t *testing.T) {
	q := New(Options{})
	got := make(chan []byte, 1)

	go func() {
		item, err := q.Read(context.Background())
		if err == nil {
			got <- item
		}
	}()

	select {
	case <-got:
		t.Fatal("Read returned before any write")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Write([]byte("hello")))
	select {
	case item := <-got:
		assert.Equal(t, "hello", string(item))
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not wake up after write")
	}
}

func TestQueueReadContextCancel(t *testing.T) {
	q := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueMultipleConsumersExactlyOnce(t *testing.T) {
	const (
		producers = 4
		consumers = 3
		perProd   = 250
	)
	q := New(Options{})

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Read(context.Background())
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				mu.Lock()
				seen[string(item)]++
				mu.Unlock()
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProd; i++ {
				assert.NoError(t, q.Write([]byte(fmt.Sprintf("%d-%d", p, i))))
			}
		}(p)
	}
	pwg.Wait()
	q.Close()
	wg.Wait()

	require.Len(t, seen, producers*perProd)
	for k, n := range seen {
		assert.Equal(t, 1, n, "item %s delivered %d times", k, n)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := New(Options{})
	require.NoError(t, q.Write([]byte("a")))
	require.NoError(t, q.Write([]byte("b")))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Write([]byte("c")), ErrClosed)

	ctx := context.Background()
	item, err := q.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(item))
	item, err = q.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(item))

	_, err = q.Read(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueCloseWakesReaders(t *testing.T) {
	q := New(Options{})
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := q.Read(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("reader not woken by Close")
		}
	}
}

func TestQueueOverflowPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   types.OverflowPolicy
		writeErr error
		want     []string
		dropped  []string
	}{
		{"drop oldest", types.DropOldest, nil, []string{"2", "3", "4"}, []string{"1"}},
		{"drop newest", types.DropNewest, ErrFull, []string{"1", "2", "3"}, []string{"4"}},
		{"block with timeout", types.Block, ErrFull, []string{"1", "2", "3"}, []string{"4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dropped []string
			q := New(Options{
				Capacity:     3,
				Policy:       tt.policy,
				BlockTimeout: 20 * time.Millisecond,
				OnDrop: func(item []byte, reason string) {
					assert.Equal(t, DropReasonQueueFull, reason)
					dropped = append(dropped, string(item))
				},
			})

			for _, s := range []string{"1", "2", "3"} {
				require.NoError(t, q.Write([]byte(s)))
			}
			err := q.Write([]byte("4"))
			if tt.writeErr != nil {
				assert.ErrorIs(t, err, tt.writeErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, 3, q.Len())
			assert.Equal(t, uint64(1), q.Dropped())
			assert.Equal(t, tt.dropped, dropped)

			var got []string
			for q.Len() > 0 {
				item, err := q.Read(context.Background())
				require.NoError(t, err)
				got = append(got, string(item))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueueBlockWaitsForRoom(t *testing.T) {
	q := New(Options{Capacity: 1, Policy: types.Block})
	require.NoError(t, q.Write([]byte("first")))

	written := make(chan error, 1)
	go func() {
		written <- q.Write([]byte("second"))
	}()

	select {
	case <-written:
		t.Fatal("Write did not block on a full queue")
	case <-time.After(30 * time.Millisecond):
	}

	item, err := q.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", string(item))

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Write not released")
	}
	item, err = q.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", string(item))
}

func TestQueueBlockReleasedByClose(t *testing.T) {
	q := New(Options{Capacity: 1, Policy: types.Block})
	require.NoError(t, q.Write([]byte("first")))

	written := make(chan error, 1)
	go func() {
		written <- q.Write([]byte("second"))
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-written:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Write not released by Close")
	}
}

func TestQueueCompaction(t *testing.T) {
	q := New(Options{})
	ctx := context.Background()
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Write([]byte(fmt.Sprint(i))))
		if i%2 == 1 {
			item, err := q.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprint(i/2), string(item))
		}
	}
	assert.Equal(t, 2500, q.Len())
	item, err := q.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2500", string(item))
}
