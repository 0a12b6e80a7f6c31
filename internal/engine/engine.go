// Package engine implements the concurrent duplex state machine shared
// by the QMP and QGA async protocol engines (spec.md §4.5): pending-command
// registration, response demultiplexing by correlation id, event
// delivery, and the termination state machine. qmp and qga each supply a
// Demux function and a small amount of protocol-specific glue (the
// greeting/handshake); everything else — the write-lock discipline, the
// pending map, id allocation, and shutdown semantics — lives here so it
// is implemented exactly once.
//
// This is a Go-idiomatic (goroutine + channel) translation of
// arcnmx/qapi-rs's futures-based QapiShared/QapiService/QapiEvents
// (qapi/src/futures/mod.rs).
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/canonical/qapi/framing"
	"github.com/canonical/qapi/shared/cancel"
	"github.com/canonical/qapi/shared/logger"
	"github.com/canonical/qapi/wire"
)

// pendingResult is what a driver delivers to a waiting Execute call.
type pendingResult struct {
	value wire.Any
	err   error
}

// Demux classifies one inbound frame as either a command response or an
// asynchronous event. QGA's implementation never returns a non-nil
// event; QMP's can return either.
type Demux func(raw []byte) (resp *wire.Response, event *wire.Event, err error)

// Shared is the reference-counted state a Service and its Driver both
// touch: the pending-command map, the OOB flag frozen at construction,
// and the stop/abandoned signals (spec.md §4.5.1).
type Shared struct {
	supportsOOB bool

	mu        sync.Mutex
	pending   map[uint32]chan pendingResult
	abandoned bool

	stopped *cancel.Canceller
	idSeq   atomic.Uint32
}

// NewShared constructs the state shared between a Service and its
// Driver. supportsOOB is frozen for the engine's lifetime, decided once
// during the greeting/handshake (spec.md §4.5.3).
func NewShared(supportsOOB bool) *Shared {
	return &Shared{
		supportsOOB: supportsOOB,
		pending:     make(map[uint32]chan pendingResult),
		stopped:     cancel.New(),
	}
}

// SupportsOOB reports whether out-of-band execution was negotiated.
func (s *Shared) SupportsOOB() bool { return s.supportsOOB }

// nextID allocates a fresh correlation id when OOB is enabled; wraps
// naturally on overflow, as spec.md §4.5.2 allows.
func (s *Shared) nextID() uint32 {
	return s.idSeq.Add(1) - 1
}

// insert registers a fresh pending slot for id, returning the channel the
// driver will complete. Insertion is refused once the engine has been
// abandoned, matching qapi-rs's command_insert: the channel is still
// returned so Execute can fail uniformly via UnexpectedEOF rather than a
// distinct "abandoned" error.
func (s *Shared) insert(id uint32) chan pendingResult {
	ch := make(chan pendingResult, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abandoned {
		ch <- pendingResult{err: ErrUnexpectedEOF}
		return ch
	}

	if _, exists := s.pending[id]; exists {
		// Cannot happen for OOB ids (monotonic) or non-OOB (single
		// slot held across the whole round trip); surfacing it as a
		// panic would match upstream, but an engine-fatal error is
		// friendlier to a long-lived Go process.
		logger.Errorf("qapi: duplicate pending command id %d", id)
	}

	s.pending[id] = ch

	return ch
}

// remove pops and returns the pending slot for id, if any.
func (s *Shared) remove(id uint32) (chan pendingResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}

	return ch, ok
}

// abandon marks the engine abandoned (the service handle has been
// closed) and, if the driver has already stopped, finalizes the stop.
// Mirrors QapiService::stop in qapi/src/futures/mod.rs.
func (s *Shared) abandon() {
	s.mu.Lock()
	already := s.abandoned
	s.abandoned = true
	driverGone := s.stopped.IsCancelled()
	s.mu.Unlock()

	if !already && driverGone {
		s.finalize(nil)
	}
}

// finalize transitions the engine to Stopped: every pending slot fails
// with cause (ErrUnexpectedEOF when cause is nil).
func (s *Shared) finalize(cause error) {
	s.stopped.Cancel()

	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint32]chan pendingResult)
	s.mu.Unlock()

	err := cause
	if err == nil {
		err = ErrUnexpectedEOF
	}

	for id, ch := range pending {
		ch <- pendingResult{err: err}
		_ = id
	}
}

// ErrUnexpectedEOF is returned by a pending Execute call when the
// underlying stream ends (or the driver is otherwise torn down) before a
// response arrives (spec.md §4.5.5, §7.1).
var ErrUnexpectedEOF = errors.New("qapi: unexpected EOF")

// Service is the handle callers use to issue commands. It may be shared
// across goroutines.
type Service struct {
	shared *Shared
	codec  *framing.Codec
	wmu    sync.Mutex
}

// NewService wraps codec for command execution against shared state.
func NewService(codec *framing.Codec, shared *Shared) *Service {
	return &Service{codec: codec, shared: shared}
}

// Execute sends cmd (as an envelope built by wire.NewEnvelope) and waits
// for its response, enforcing the non-OOB write-lock retention described
// in spec.md §4.5.5: when OOB was not negotiated for the connection, the
// write lock is held until the response arrives so no other command can
// interleave on the wire.
//
// oobRequested selects "exec-oob" over "execute" for this particular
// call (and is ignored when cmd does not allow it); id allocation and
// the write-lock discipline instead follow whether OOB was negotiated
// for the whole connection (spec.md §4.5.2), since once any command may
// run out of order every response needs a correlation id to be
// demultiplexed correctly, not only the ones sent as exec-oob.
func (s *Service) Execute(ctx context.Context, cmd wire.Command, oobRequested bool) (wire.Any, error) {
	oobConn := s.shared.supportsOOB
	execOOB := oobRequested && oobConn && cmd.AllowOOB()

	var id uint32
	var idPtr *uint32
	if oobConn {
		id = s.shared.nextID()
		idPtr = &id
	}

	env, err := wire.NewEnvelope(cmd, idPtr, execOOB)
	if err != nil {
		return nil, err
	}

	s.wmu.Lock()

	ch := s.shared.insert(id)

	if err := s.codec.Encode(env); err != nil {
		s.shared.remove(id)
		s.wmu.Unlock()

		return nil, fmt.Errorf("qapi: send %s: %w", cmd.Name(), err)
	}

	if oobConn {
		// Release the write lock immediately: once OOB is negotiated,
		// other commands may interleave on the wire regardless of
		// whether this one itself ran out-of-band.
		s.wmu.Unlock()
	} else {
		// Retain the write lock until the response resolves: QEMU
		// without OOB does not guarantee response order independent
		// of send order (spec.md §9).
		defer s.wmu.Unlock()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}

		return res.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks this service handle abandoned (spec.md §4.5.6: Running →
// Draining). The driver keeps delivering events until it ends on its
// own; pending commands already in flight still resolve normally.
func (s *Service) Close() {
	s.shared.abandon()
}

// Driver reads frames off the wire, demultiplexing responses to pending
// Execute calls and handing events to an optional consumer.
type Driver struct {
	shared *Shared
	codec  *framing.Codec
	demux  Demux
	events chan *wire.Event
}

// NewDriver constructs a Driver reading codec and classifying frames with
// demux. events may be nil (QGA mode, or QMP "spin and discard" mode);
// when non-nil it is closed once Run returns.
func NewDriver(codec *framing.Codec, shared *Shared, demux Demux, events chan *wire.Event) *Driver {
	return &Driver{shared: shared, codec: codec, demux: demux, events: events}
}

// Run reads frames until the stream ends, ctx is cancelled, or a
// protocol violation occurs. It always returns after transitioning the
// engine to Stopped.
func (d *Driver) Run(ctx context.Context) error {
	defer func() {
		if d.events != nil {
			close(d.events)
		}
	}()

	return d.codec.RunCancelable(ctx, d.runLoop)
}

func (d *Driver) runLoop() error {
	for {
		var raw wire.Any
		if err := d.codec.Decode(&raw); err != nil {
			d.shared.finalize(ErrUnexpectedEOF)
			return err
		}

		resp, event, err := d.demux(raw)
		if err != nil {
			logger.Errorf("qapi: protocol violation: %v", err)
			d.shared.finalize(fmt.Errorf("%w: %v", wire.ErrProtocol, err))

			return err
		}

		switch {
		case resp != nil:
			if derr := d.deliverResponse(resp); derr != nil {
				logger.Errorf("qapi: %v", derr)
				d.shared.finalize(derr)

				return derr
			}
		case event != nil:
			d.deliverEvent(event)
		}
	}
}

func (d *Driver) deliverResponse(res *wire.Response) error {
	id, err := wire.ResponseID(res, d.shared.supportsOOB)
	if err != nil {
		return err
	}

	ch, ok := d.shared.remove(id)
	if !ok {
		return fmt.Errorf("%w: unknown response id %d", wire.ErrProtocol, id)
	}

	value, resErr := res.Result()
	ch <- pendingResult{value: value, err: errAsExecute(resErr)}

	return nil
}

func errAsExecute(err error) error {
	if err == nil {
		return nil
	}

	return err
}

func (d *Driver) deliverEvent(event *wire.Event) {
	if d.events == nil {
		logger.Debugf("qapi: dropping event %s (no consumer attached)", event.Name)
		return
	}

	d.events <- event
}
