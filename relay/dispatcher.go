// Package relay serialises transport requests onto a single processing
// worker that owns the session and its card.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/younglifestyle/rsap4go/common"
	"github.com/younglifestyle/rsap4go/utils"
)

var (
	ErrBusy    = errors.New("relay: session busy")
	ErrTimeout = errors.New("relay: timed out waiting for response")
	ErrClosed  = errors.New("relay: dispatcher closed")
)

// Processor turns one inbound chunk into the reply bytes. It is only ever
// called from the dispatcher worker.
type Processor interface {
	Process(ctx context.Context, chunk []byte) ([]byte, error)
	Close() error
}

// Initializer is implemented by processors with a setup step, such as
// connecting the card.
type Initializer interface {
	Init(ctx context.Context) error
}

// PendingDiscarder is implemented by processors that hold partial input
// between exchanges, such as the bytes of an incomplete frame.
type PendingDiscarder interface {
	DiscardPending()
}

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	// Timeout bounds an exchange whose context carries no deadline.
	Timeout time.Duration
	Logger  common.Logger
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = common.NewTimeouts().Submit
	}
	o.Logger = common.OrNop(o.Logger)
}

type jobKind int

const (
	jobProcess jobKind = iota
	jobInit
	jobDiscard
)

type result struct {
	payload []byte
	err     error
}

type job struct {
	id      uint32
	kind    jobKind
	ctx     context.Context
	payload []byte
	reply   chan result
}

// Dispatcher admits one exchange at a time and runs it on its worker.
//
// The single-flight slot is taken by the caller and released by the worker
// once the job has finished or been skipped, so an abandoned caller never
// lets a second exchange reach the card while the first is still running.
// The slot is released before the reply is delivered, so a caller holding
// its reply never finds its own exchange still in flight.
type Dispatcher struct {
	proc   Processor
	opts   Options
	logger common.Logger

	requests *utils.Queue[*job]
	slot     chan struct{}
	jobIDs   *atomic.Uint32

	closed   *atomic.Bool
	stop     context.CancelFunc
	stopCtx  context.Context
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher starts the worker for proc.
func NewDispatcher(proc Processor, opts Options) *Dispatcher {
	opts.applyDefaults()
	stopCtx, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		proc:     proc,
		opts:     opts,
		logger:   opts.Logger,
		requests: utils.NewQueue[*job](),
		slot:     make(chan struct{}, 1),
		jobIDs:   atomic.NewUint32(0),
		closed:   atomic.NewBool(false),
		stop:     stop,
		stopCtx:  stopCtx,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit relays one request, waiting for the session if another exchange is
// in flight.
func (d *Dispatcher) Submit(ctx context.Context, req []byte) ([]byte, error) {
	return d.exchange(ctx, jobProcess, req, true)
}

// TrySubmit relays one request, failing with ErrBusy if another exchange is
// in flight.
func (d *Dispatcher) TrySubmit(ctx context.Context, req []byte) ([]byte, error) {
	return d.exchange(ctx, jobProcess, req, false)
}

// DiscardPending drops partial input buffered by the processor, for use when
// the channel that sent it has gone away. It is a no-op for processors that
// do not buffer.
func (d *Dispatcher) DiscardPending(ctx context.Context) error {
	_, err := d.exchange(ctx, jobDiscard, nil, true)
	return err
}

// InitCard runs the processor's setup step on the worker. It is a no-op for
// processors without one and for cards already connected.
func (d *Dispatcher) InitCard(ctx context.Context) error {
	_, err := d.exchange(ctx, jobInit, nil, true)
	return err
}

func (d *Dispatcher) exchange(ctx context.Context, kind jobKind, req []byte, wait bool) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	if err := d.acquire(ctx, wait); err != nil {
		return nil, err
	}

	j := &job{
		id:      d.jobIDs.Inc(),
		kind:    kind,
		ctx:     ctx,
		payload: req,
		reply:   make(chan result, 1),
	}
	d.requests.Put(j)

	select {
	case r := <-j.reply:
		return r.payload, r.err
	case <-ctx.Done():
		d.logger.Warn("exchange abandoned", "job", j.id, "error", ctx.Err())
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case <-d.done:
		select {
		case r := <-j.reply:
			return r.payload, r.err
		default:
			return nil, ErrClosed
		}
	}
}

func (d *Dispatcher) acquire(ctx context.Context, wait bool) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !wait {
		select {
		case d.slot <- struct{}{}:
			return nil
		default:
			d.logger.Warn("exchange rejected, session busy")
			return ErrBusy
		}
	}
	select {
	case d.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case <-d.stopCtx.Done():
		return ErrClosed
	}
}

func (d *Dispatcher) release() {
	<-d.slot
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		j, err := d.requests.Get(d.stopCtx)
		if err != nil {
			break
		}
		d.handle(j)
	}

	for _, j := range d.requests.Drain() {
		d.release()
		j.reply <- result{err: ErrClosed}
	}
	if err := d.proc.Close(); err != nil {
		d.logger.Error("processor close failed", "error", err)
	}
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) handle(j *job) {
	if err := j.ctx.Err(); err != nil {
		d.logger.Debug("skipping abandoned job", "job", j.id, "error", err)
		d.release()
		return
	}

	var r result
	switch j.kind {
	case jobInit:
		if in, ok := d.proc.(Initializer); ok {
			r.err = in.Init(j.ctx)
		}
	case jobDiscard:
		if pd, ok := d.proc.(PendingDiscarder); ok {
			pd.DiscardPending()
		}
	default:
		r.payload, r.err = d.proc.Process(j.ctx, j.payload)
	}
	if r.err != nil {
		d.logger.Error("exchange failed", "job", j.id, "error", r.err)
	}
	d.release()
	j.reply <- r
}

// Shutdown stops the worker and closes the processor, releasing the card.
// Queued exchanges fail with ErrClosed. It is safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		d.closed.Store(true)
		d.stop()
	})
	<-d.done
}
