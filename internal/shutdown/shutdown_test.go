// Tests for [Registry] broadcast semantics and the [Coordinator] shutdown
// sequence, including the documented late-registration race.
package shutdown

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/loopchat/internal/pool"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// received drains ch without blocking and returns how many signals it held.
func received(ch <-chan Signal) int {
	n := 0
	for {
		select {
		case s := <-ch:
			if s == Terminate {
				n++
			}
		default:
			return n
		}
	}
}

// fakeJoiner records TryJoin calls and returns a fixed answer.
type fakeJoiner struct {
	calls  atomic.Int32
	result bool
}

func (f *fakeJoiner) TryJoin() bool {
	f.calls.Add(1)
	return f.result
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry()
	a, b := NewTermination(), NewTermination()
	r.Register(a)
	r.Register(b)

	assert.Equal(t, 2, r.Broadcast())
	assert.Equal(t, 1, received(a))
	assert.Equal(t, 1, received(b))
}

func TestRegistry_FullSlotSkipped(t *testing.T) {
	r := NewRegistry()
	ch := NewTermination()
	r.Register(ch)

	assert.Equal(t, 1, r.Broadcast())
	assert.Equal(t, 0, r.Broadcast(), "a pending signal must not block or duplicate")
	assert.Equal(t, 1, received(ch))
}

func TestRegistry_StaleEntryIsHarmless(t *testing.T) {
	r := NewRegistry()
	stale := NewTermination()
	r.Register(stale)
	stale <- Terminate // nobody will ever read this slot again

	live := NewTermination()
	r.Register(live)

	assert.Equal(t, 1, r.Broadcast())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 1, received(live))
}

// ///////////////////////////////////////////////
// Coordinator
// ///////////////////////////////////////////////

func TestCoordinator_FireOnceLateRegistrationUnaffected(t *testing.T) {
	r := NewRegistry()
	first, second := NewTermination(), NewTermination()
	r.Register(first)
	r.Register(second)

	p := pool.MustNew(2, pool.WithLogger(quietLogger()))
	c := New(r, p, WithLogger(quietLogger()))

	assert.Equal(t, 2, c.Fire())

	late := NewTermination()
	r.Register(late)

	assert.Equal(t, 1, received(first))
	assert.Equal(t, 1, received(second))
	assert.Equal(t, 0, received(late))
	assert.Equal(t, 0, p.Live(), "Fire must drain the pool")
}

func TestCoordinator_FireDrainsHandlers(t *testing.T) {
	r := NewRegistry()
	p := pool.MustNew(3, pool.WithLogger(quietLogger()))

	var exited atomic.Int32
	for i := 0; i < 3; i++ {
		term := NewTermination()
		r.Register(term)
		require.NoError(t, p.Execute(pool.JobFunc(func() {
			for {
				select {
				case <-term:
					exited.Add(1)
					return
				default:
					time.Sleep(5 * time.Millisecond)
				}
			}
		})))
	}

	c := New(r, p, WithLogger(quietLogger()))
	c.Fire()

	assert.Equal(t, int32(3), exited.Load(), "Fire returns only after the pool is joined")
}

func TestCoordinator_PoolBusySkipsWaiting(t *testing.T) {
	j := &fakeJoiner{result: false}
	c := New(NewRegistry(), j, WithLogger(quietLogger()))

	c.Fire()
	assert.Equal(t, int32(1), j.calls.Load())
}

func TestCoordinator_NilPool(t *testing.T) {
	r := NewRegistry()
	ch := NewTermination()
	r.Register(ch)

	c := New(r, nil, WithLogger(quietLogger()))
	assert.Equal(t, 1, c.Fire())
}

func TestCoordinator_RunExitsWithZero(t *testing.T) {
	r := NewRegistry()
	ch := NewTermination()
	r.Register(ch)

	codes := make(chan int, 1)
	j := &fakeJoiner{result: true}
	c := New(r, j, WithLogger(quietLogger()), WithExit(func(code int) { codes <- code }))

	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		c.Run(sig)
		close(done)
	}()

	sig <- syscall.SIGINT
	select {
	case code := <-codes:
		assert.Equal(t, ExitCode, code)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not exit after the signal")
	}
	assert.Equal(t, 1, received(ch))
	assert.Equal(t, int32(1), j.calls.Load())

	close(sig)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the signal channel closed")
	}
}
