package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/js-runtime/errors"
	"github.com/wippyai/js-runtime/resource"
	"github.com/wippyai/js-runtime/scheduler"
)

func installCore(t *testing.T, rt *Runtime, name string, fn any) {
	t.Helper()
	mustRun(t, rt, func(rt *Runtime) error {
		var f *Function
		switch fn := fn.(type) {
		case SyncFunc:
			f = rt.CreateSyncFunction(name, fn)
		case AsyncFunc:
			f = rt.CreateAsyncFunction(name, fn)
		default:
			t.Fatalf("unsupported function type %T", fn)
		}
		return rt.Core().Set(name, f)
	})
}

func TestSyncFunction_Add(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "add", SyncFunc(func(c *Call) (any, error) {
		return c.Arg(0).AsFloat() + c.Arg(1).AsFloat(), nil
	}))

	v := mustEval(t, rt, "Core.add(2, 3)")
	assert.Equal(t, KindNumber, v.Kind())
	assert.Equal(t, int64(5), v.AsInt())

	name := mustEval(t, rt, "Core.add.name")
	assert.Equal(t, "add", name.AsString())
}

func TestSyncFunction_ReceivesThisAndArgs(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "describe", SyncFunc(func(c *Call) (any, error) {
		tag, err := c.This.AsObject().Get("tag")
		if err != nil {
			return nil, err
		}
		return tag.AsString() + ":" + c.Arg(0).AsString() + ":" + c.Arg(5).Kind().String(), nil
	}))

	v := mustEval(t, rt, "const o = {tag: 'T', describe: Core.describe}; o.describe('a')")
	assert.Equal(t, "T:a:undefined", v.AsString())
}

func TestSyncFunction_ErrorBecomesThrow(t *testing.T) {
	rt := newRuntime(t)
	boom := stderrors.New("disk on fire")
	installCore(t, rt, "fail", SyncFunc(func(*Call) (any, error) {
		return nil, boom
	}))

	v := mustEval(t, rt, `
		let out;
		try { Core.fail() } catch (e) { out = [e instanceof Error, e.code, e.message.includes('disk on fire')].join(',') }
		out
	`)
	assert.Equal(t, "true,host.native_throw,true", v.AsString())

	_, err := rt.Eval(context.Background(), "Core.fail()", "uncaught.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, errors.ErrNativeThrow)
}

func TestSyncFunction_PanicBecomesThrow(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "explode", SyncFunc(func(*Call) (any, error) {
		panic("bad state")
	}))

	v := mustEval(t, rt, `
		let msg;
		try { Core.explode() } catch (e) { msg = e.message }
		msg
	`)
	assert.Contains(t, v.AsString(), "bad state")
}

func TestSyncFunction_RethrowsOriginalException(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "invoke", SyncFunc(func(c *Call) (any, error) {
		return c.Arg(0).AsFunction().Call(nil)
	}))

	v := mustEval(t, rt, `
		class AppError extends Error {}
		const original = new AppError('from script');
		let same;
		try { Core.invoke(() => { throw original }) } catch (e) { same = e === original }
		same
	`)
	assert.True(t, v.AsBool())
}

func TestAsyncFunction_Resolves(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "sleep", AsyncFunc(func(ctx context.Context, c *Call) (any, error) {
		select {
		case <-time.After(10 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	v, err := rt.EvalAsync(context.Background(), "Core.sleep()", "async.js")
	require.NoError(t, err)
	assert.Equal(t, "done", v.AsString())

	v, err = rt.EvalAsync(context.Background(), "(async () => (await Core.sleep()) + '!')()", "chain.js")
	require.NoError(t, err)
	assert.Equal(t, "done!", v.AsString())
}

func TestAsyncFunction_RejectsWithError(t *testing.T) {
	rt := newRuntime(t)
	denied := stderrors.New("denied")
	installCore(t, rt, "check", AsyncFunc(func(context.Context, *Call) (any, error) {
		return nil, denied
	}))

	_, err := rt.EvalAsync(context.Background(), "Core.check()", "reject.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPromiseRejected)
	assert.ErrorIs(t, err, denied)

	v, err := rt.EvalAsync(context.Background(), "Core.check().catch(e => e.code)", "caught.js")
	require.NoError(t, err)
	assert.Equal(t, "host.native_throw", v.AsString())
}

func TestAsyncFunction_PanicRejects(t *testing.T) {
	rt := newRuntime(t)
	installCore(t, rt, "crash", AsyncFunc(func(context.Context, *Call) (any, error) {
		panic("async crash")
	}))

	_, err := rt.EvalAsync(context.Background(), "Core.crash()", "crash.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPromiseRejected)
	assert.Contains(t, err.Error(), "async crash")
}

func TestAsyncFunction_CanceledOnClose(t *testing.T) {
	rt, err := New(context.Background())
	require.NoError(t, err)

	started := make(chan struct{})
	var canceled atomic.Bool
	installCore(t, rt, "wait", AsyncFunc(func(ctx context.Context, c *Call) (any, error) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return nil, ctx.Err()
	}))

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.EvalAsync(context.Background(), "Core.wait()", "wait.js")
		errCh <- err
	}()
	<-started

	require.NoError(t, rt.Close(context.Background()))
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errors.ErrTeardown)
	case <-time.After(2 * time.Second):
		t.Fatal("await did not observe teardown")
	}
	assert.Eventually(t, canceled.Load, time.Second, 5*time.Millisecond)
}

type handleRecorder struct {
	created []resource.Handle
}

func (h *handleRecorder) OnResourceEvent(e resource.Event) {
	if e.Type == resource.EventCreated {
		h.created = append(h.created, e.Handle)
	}
}

func TestHostFunction_ContextReleasedOnCollect(t *testing.T) {
	rt := newRuntime(t)
	rec := &handleRecorder{}
	rt.contexts.Subscribe(rec)

	installCore(t, rt, "ping", SyncFunc(func(*Call) (any, error) {
		return "pong", nil
	}))
	require.Len(t, rec.created, 1)
	assert.Equal(t, 1, rt.Contexts())

	// The path a collected function object takes: removal queued at idle
	// priority on the engine goroutine.
	h := rec.created[0]
	require.NoError(t, rt.Scheduler().Schedule(scheduler.PriorityIdle, func() {
		rt.contexts.Remove(h)
	}))
	mustRun(t, rt, func(*Runtime) error { return nil })
	require.Eventually(t, func() bool { return rt.Contexts() == 0 }, time.Second, 5*time.Millisecond)

	// A stale call fails in script rather than touching released state.
	v := mustEval(t, rt, "let code; try { Core.ping() } catch (e) { code = e.code } code")
	assert.Equal(t, "host.runtime_lost", v.AsString())
}

func TestHostFunction_ContextsReleasedAtClose(t *testing.T) {
	rt, err := New(context.Background())
	require.NoError(t, err)

	installCore(t, rt, "a", SyncFunc(func(*Call) (any, error) { return nil, nil }))
	installCore(t, rt, "b", AsyncFunc(func(context.Context, *Call) (any, error) { return nil, nil }))
	assert.Equal(t, 2, rt.Contexts())

	require.NoError(t, rt.Close(context.Background()))
	assert.Equal(t, 0, rt.Contexts())
}
