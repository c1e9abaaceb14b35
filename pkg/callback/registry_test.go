package callback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
)

func await(t *testing.T, out any) (any, error) {
	t.Helper()
	p, ok := out.(*callback.Promise)
	require.True(t, ok, "chained dispatch must return *callback.Promise, got %T", out)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Await(ctx)
}

// ─── Sync mode ───────────────────────────────────────────────────────────────

func TestFire_RunsInRegistrationOrder(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)
	require.Equal(t, callback.ModeSync, r.Mode())

	var calls []string
	r.Add(func(args ...any) any { calls = append(calls, "h1"); return nil })
	r.Add(func(args ...any) any { calls = append(calls, "h2"); return "last" })

	out := r.Dispatch()(1, "a.txt")
	assert.Equal(t, []string{"h1", "h2"}, calls)
	assert.Equal(t, "last", out)
}

func TestFire_FalseStopsTheRun(t *testing.T) {
	r := callback.New(callback.OnComplete, nil)

	var calls []string
	r.Add(func(args ...any) any { calls = append(calls, "h1"); return false })
	r.Add(func(args ...any) any { calls = append(calls, "h2"); return true })

	assert.Equal(t, false, r.Dispatch()())
	assert.Equal(t, []string{"h1"}, calls)
}

func TestFire_OnlyLiteralFalseStops(t *testing.T) {
	r := callback.New(callback.OnComplete, nil)

	var calls int
	r.Add(func(args ...any) any { calls++; return 0 })
	r.Add(func(args ...any) any { calls++; return "" })
	r.Add(func(args ...any) any { calls++; return nil })

	assert.Nil(t, r.Dispatch()())
	assert.Equal(t, 3, calls)
}

func TestFire_PassesArguments(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)

	var got []any
	r.Add(func(args ...any) any { got = args; return nil })
	r.Dispatch()(7, "a.txt", int64(10), int64(20))

	assert.Equal(t, []any{7, "a.txt", int64(10), int64(20)}, got)
}

func TestFire_EmptyReturnsNil(t *testing.T) {
	r := callback.New(callback.OnError, nil)
	assert.Nil(t, r.Dispatch()(1, "x", "boom"))
}

func TestRemove_BeforeDispatch(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)

	var calls []string
	h1 := r.Add(func(args ...any) any { calls = append(calls, "h1"); return nil })
	r.Add(func(args ...any) any { calls = append(calls, "h2"); return nil })
	r.Remove(h1)

	r.Dispatch()()
	assert.Equal(t, []string{"h2"}, calls)
	assert.Equal(t, 1, r.Len())
}

func TestRemove_UnknownHandleIsNoop(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)
	r.Add(func(args ...any) any { return nil })

	other := callback.New(callback.OnProgress, nil)
	foreign := other.Add(func(args ...any) any { return nil })

	r.Remove(foreign)
	r.Remove(nil)
	assert.Equal(t, 1, r.Len())
}

func TestRemove_SameFunctionTwice(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)

	var calls int
	fn := func(args ...any) any { calls++; return nil }
	first := r.Add(fn)
	r.Add(fn)

	r.Remove(first)
	r.Dispatch()()
	assert.Equal(t, 1, calls, "only the first registration is removed")

	r.Remove(first)
	assert.Equal(t, 1, r.Len(), "removing an already removed handle is a no-op")
}

func TestAdd_NilHandlerPanics(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	assert.Panics(t, func() { r.Add(nil) })
}

func TestDispatch_IsStableAcrossMutations(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)
	d := r.Dispatch()

	var calls int
	h := r.Add(func(args ...any) any { calls++; return nil })
	d()
	r.Remove(h)
	d()

	assert.Equal(t, 1, calls)
}

func TestFire_MutationDuringDispatchAffectsNextRunOnly(t *testing.T) {
	r := callback.New(callback.OnProgress, nil)

	var calls []string
	r.Add(func(args ...any) any {
		calls = append(calls, "h1")
		r.Add(func(args ...any) any { calls = append(calls, "late"); return nil })
		return nil
	})

	r.Dispatch()()
	assert.Equal(t, []string{"h1"}, calls)

	calls = nil
	r.Dispatch()()
	assert.Equal(t, []string{"h1", "late"}, calls)
}

// ─── Chained mode ────────────────────────────────────────────────────────────

func TestChain_RunsNewestFirst(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	require.Equal(t, callback.ModeChained, r.Mode())

	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(name string) callback.Handler {
		return func(args ...any) any {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		}
	}
	r.Add(record("h1"))
	r.Add(record("h2"))

	_, err := await(t, r.Dispatch()(0, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "h1"}, calls)
}

func TestChain_SnapshotIgnoresHandlersAddedMidRun(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)

	var (
		mu    sync.Mutex
		calls []string
		once  sync.Once
	)
	record := func(name string) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
	}
	r.Add(func(args ...any) any {
		record("h1")
		once.Do(func() {
			r.Add(func(args ...any) any { record("late"); return nil })
		})
		return nil
	})

	_, err := await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, calls)

	calls = nil
	_, err = await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "h1"}, calls)
}

func TestChain_SideEffectsVisibleAfterAwait(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)

	release := make(chan struct{})
	var seen any
	r.Add(func(args ...any) any {
		<-release
		seen = args[0]
		return nil
	})

	p := r.Dispatch()("a.txt").(*callback.Promise)
	assert.False(t, p.Settled(), "dispatch returns before chained handlers finish")

	close(release)
	_, err := await(t, p)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", seen)
}

func TestChain_FalseRejectsAndSkipsOlderHandlers(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)

	var h1Called bool
	r.Add(func(args ...any) any { h1Called = true; return nil })
	r.Add(func(args ...any) any { return false })

	_, err := await(t, r.Dispatch()())
	assert.ErrorIs(t, err, callback.ErrRejected)
	assert.False(t, h1Called)
}

func TestChain_MergesRecords(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	r.Add(func(args ...any) any { return callback.Record{"x": 1} })
	r.Add(func(args ...any) any { return callback.Record{"y": 2} })

	v, err := await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, callback.Record{"x": 1, "y": 2}, v)
}

func TestChain_OlderHandlerOverwritesKeys(t *testing.T) {
	r := callback.New(callback.OnUpload, nil)
	r.Add(func(args ...any) any { return map[string]any{"k": "old-registration"} })
	r.Add(func(args ...any) any { return map[string]any{"k": "new-registration", "n": 1} })

	v, err := await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, callback.Record{"k": "old-registration", "n": 1}, v)
}

func TestChain_ScalarReplacesAndNilKeeps(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	r.Add(func(args ...any) any { return 5 })
	r.Add(func(args ...any) any { return nil })

	v, err := await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	r2 := callback.New(callback.OnSubmit, nil)
	r2.Add(func(args ...any) any { return nil })
	r2.Add(func(args ...any) any { return 5 })

	v, err = await(t, r2.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, 5, v, "nil must not erase an earlier result")
}

func TestChain_EmptyResolvesNil(t *testing.T) {
	r := callback.New(callback.OnValidate, nil)

	out := r.Dispatch()()
	p, ok := out.(*callback.Promise)
	require.True(t, ok)
	assert.True(t, p.Settled())

	v, err := p.Await(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestChain_WaitsOnPromises(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)

	release := make(chan struct{})
	var olderSawRelease bool
	r.Add(func(args ...any) any {
		select {
		case <-release:
			olderSawRelease = true
		default:
		}
		return callback.Record{"older": true}
	})
	r.Add(func(args ...any) any {
		return callback.Go(func() (any, error) {
			<-release
			return callback.Record{"newer": true}, nil
		})
	})

	p := r.Dispatch()().(*callback.Promise)
	assert.False(t, p.Settled())
	close(release)

	v, err := await(t, p)
	require.NoError(t, err)
	assert.True(t, olderSawRelease, "older handler must run after the newer promise settled")
	assert.Equal(t, callback.Record{"older": true, "newer": true}, v)
}

func TestChain_RejectedPromisePropagates(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	boom := errors.New("quota exceeded")

	var olderCalled bool
	r.Add(func(args ...any) any { olderCalled = true; return nil })
	r.Add(func(args ...any) any { return callback.Rejected(boom) })

	_, err := await(t, r.Dispatch()())
	assert.ErrorIs(t, err, boom)
	assert.False(t, olderCalled)
}

func TestChain_PromiseResolvingFalseRejects(t *testing.T) {
	r := callback.New(callback.OnCancel, nil)
	r.Add(func(args ...any) any { return callback.Resolved(false) })

	_, err := await(t, r.Dispatch()())
	assert.ErrorIs(t, err, callback.ErrRejected)
}

type fakeAwaiter struct{ v any }

func (f fakeAwaiter) Await(context.Context) (any, error) { return f.v, nil }

func TestChain_AcceptsAnyAwaiter(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	r.Add(func(args ...any) any { return fakeAwaiter{v: callback.Record{"via": "awaiter"}} })

	v, err := await(t, r.Dispatch()())
	require.NoError(t, err)
	assert.Equal(t, callback.Record{"via": "awaiter"}, v)
}

func TestChain_PanicBecomesRejection(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	r.Add(func(args ...any) any { panic("kaboom") })

	_, err := await(t, r.Dispatch()())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestChain_IsRepeatable(t *testing.T) {
	r := callback.New(callback.OnSubmit, nil)
	r.Add(func(args ...any) any { return callback.Record{"n": args[0]} })

	for i := 0; i < 3; i++ {
		v, err := await(t, r.Dispatch()(i))
		require.NoError(t, err)
		assert.Equal(t, callback.Record{"n": i}, v)
	}
}

func TestNew_CustomClassifier(t *testing.T) {
	allChained := func(string) callback.Mode { return callback.ModeChained }
	r := callback.New(callback.OnProgress, allChained)
	assert.Equal(t, callback.ModeChained, r.Mode())
	assert.Equal(t, "chained", r.Mode().String())
}
