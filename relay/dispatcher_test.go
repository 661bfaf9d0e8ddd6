package relay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/younglifestyle/rsap4go/card"
	"github.com/younglifestyle/rsap4go/rsap"
	"github.com/younglifestyle/rsap4go/session"
)

// gatedProcessor echoes requests, optionally blocking until released, and
// records the highest number of overlapping calls.
type gatedProcessor struct {
	gate      chan struct{}
	started   chan struct{}
	active    *atomic.Int32
	maxActive *atomic.Int32
	calls     *atomic.Int32
	inits     *atomic.Int32
	closed    *atomic.Bool
}

func newGatedProcessor(gated bool) *gatedProcessor {
	p := &gatedProcessor{
		started:   make(chan struct{}, 16),
		active:    atomic.NewInt32(0),
		maxActive: atomic.NewInt32(0),
		calls:     atomic.NewInt32(0),
		inits:     atomic.NewInt32(0),
		closed:    atomic.NewBool(false),
	}
	if gated {
		p.gate = make(chan struct{})
	}
	return p
}

func (p *gatedProcessor) Process(ctx context.Context, chunk []byte) ([]byte, error) {
	n := p.active.Inc()
	defer p.active.Dec()
	for {
		m := p.maxActive.Load()
		if n <= m || p.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	p.calls.Inc()
	select {
	case p.started <- struct{}{}:
	default:
	}
	if p.gate != nil {
		<-p.gate
	}
	return append([]byte("re:"), chunk...), nil
}

func (p *gatedProcessor) Init(context.Context) error {
	p.inits.Inc()
	return nil
}

func (p *gatedProcessor) Close() error {
	p.closed.Store(true)
	return nil
}

func TestDispatcherSubmit(t *testing.T) {
	p := newGatedProcessor(false)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	require.NoError(t, d.InitCard(context.Background()))
	assert.Equal(t, int32(1), p.inits.Load())

	reply, err := d.Submit(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("re:a"), reply)

	reply, err = d.TrySubmit(context.Background(), []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("re:b"), reply)
}

func TestDispatcherRejectsWhenBusy(t *testing.T) {
	p := newGatedProcessor(true)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	first := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), []byte("first"))
		first <- err
	}()
	<-p.started

	_, err := d.TrySubmit(context.Background(), []byte("second"))
	assert.ErrorIs(t, err, ErrBusy)

	close(p.gate)
	require.NoError(t, <-first)

	reply, err := d.TrySubmit(context.Background(), []byte("third"))
	require.NoError(t, err)
	assert.Equal(t, []byte("re:third"), reply)
}

func TestDispatcherSequentialTrySubmitNeverBusy(t *testing.T) {
	p := newGatedProcessor(false)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	busy := 0
	for i := 0; i < 20000; i++ {
		req := []byte{byte(i), byte(i >> 8)}
		reply, err := d.TrySubmit(context.Background(), req)
		if errors.Is(err, ErrBusy) {
			busy++
			continue
		}
		require.NoError(t, err)
		require.Equal(t, append([]byte("re:"), req...), reply)
	}
	assert.Zero(t, busy, "sequential caller rejected as busy")
}

func TestDispatcherSingleFlight(t *testing.T) {
	p := newGatedProcessor(false)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte{byte(i)}
			reply, err := d.Submit(context.Background(), req)
			if assert.NoError(t, err) {
				assert.Equal(t, append([]byte("re:"), req...), reply)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(20), p.calls.Load())
	assert.Equal(t, int32(1), p.maxActive.Load())
}

func TestDispatcherTimeoutKeepsSlotUntilWorkerFinishes(t *testing.T) {
	p := newGatedProcessor(true)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Submit(ctx, []byte("slow"))
	assert.ErrorIs(t, err, ErrTimeout)

	// the abandoned exchange is still on the card
	_, err = d.TrySubmit(context.Background(), []byte("next"))
	assert.ErrorIs(t, err, ErrBusy)

	close(p.gate)
	require.Eventually(t, func() bool {
		_, err := d.TrySubmit(context.Background(), []byte("next"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), p.maxActive.Load())
}

func TestDispatcherWaitingCallerTimesOut(t *testing.T) {
	p := newGatedProcessor(true)
	d := NewDispatcher(p, Options{})
	defer d.Shutdown()

	first := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), []byte("first"))
		first <- err
	}()
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := d.Submit(ctx, []byte("waiting"))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, d.requests.Len())

	close(p.gate)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestDispatcherShutdown(t *testing.T) {
	p := newGatedProcessor(false)
	d := NewDispatcher(p, Options{})

	d.Shutdown()
	d.Shutdown()
	assert.True(t, p.closed.Load())

	_, err := d.Submit(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.InitCard(context.Background()), ErrClosed)
}

func TestDispatcherDefaultTimeout(t *testing.T) {
	p := newGatedProcessor(true)
	d := NewDispatcher(p, Options{Timeout: 30 * time.Millisecond})
	defer func() {
		close(p.gate)
		d.Shutdown()
	}()

	_, err := d.Submit(context.Background(), []byte("stuck"))
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
}

// scriptedCard is a minimal card for driving a real session through the dispatcher.
type scriptedCard struct{}

func (scriptedCard) ATR() ([]byte, error) { return []byte{0x3B, 0x00}, nil }
func (scriptedCard) Transmit(apdu []byte) ([]byte, byte, byte, error) {
	return nil, 0x90, 0x00, nil
}

var (
	_ card.Card        = scriptedCard{}
	_ PendingDiscarder = (*session.Session)(nil)
)

func TestDispatcherDrivesSession(t *testing.T) {
	d := NewDispatcher(session.New(scriptedCard{}, session.Options{}), Options{})
	defer d.Shutdown()

	ctx := context.Background()
	connect, err := rsap.Encode(rsap.NewConnectReq(300))
	require.NoError(t, err)

	// fragments return an empty reply until the frame is complete
	reply, err := d.Submit(ctx, connect[:5])
	require.NoError(t, err)
	assert.Empty(t, reply)

	reply, err = d.Submit(ctx, connect[5:])
	require.NoError(t, err)
	want, err := rsap.EncodeAll(rsap.NewConnectResp(rsap.ConnectionOK), rsap.NewStatusInd(rsap.StatusCardReset))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, reply))

	atrReq, err := rsap.Encode(rsap.NewAtrReq())
	require.NoError(t, err)
	reply, err = d.Submit(ctx, atrReq)
	require.NoError(t, err)
	want, err = rsap.Encode(rsap.NewAtrResp([]byte{0x3B, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, want, reply)
}

func TestDispatcherDiscardPending(t *testing.T) {
	d := NewDispatcher(session.New(scriptedCard{}, session.Options{}), Options{})
	defer d.Shutdown()

	ctx := context.Background()
	connect, err := rsap.Encode(rsap.NewConnectReq(300))
	require.NoError(t, err)

	// a peer leaves after half a frame
	reply, err := d.Submit(ctx, connect[:6])
	require.NoError(t, err)
	assert.Empty(t, reply)
	require.NoError(t, d.DiscardPending(ctx))

	reply, err = d.Submit(ctx, connect)
	require.NoError(t, err)
	want, err := rsap.EncodeAll(rsap.NewConnectResp(rsap.ConnectionOK), rsap.NewStatusInd(rsap.StatusCardReset))
	require.NoError(t, err)
	assert.Equal(t, want, reply)
}

func TestDispatcherDiscardPendingWithoutBuffer(t *testing.T) {
	p := newGatedProcessor(false)
	d := NewDispatcher(p, Options{})

	require.NoError(t, d.DiscardPending(context.Background()))
	assert.Equal(t, int32(0), p.calls.Load())

	d.Shutdown()
	assert.ErrorIs(t, d.DiscardPending(context.Background()), ErrClosed)
}
