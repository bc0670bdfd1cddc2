package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBuilt is returned by Build when the peripheral is already built.
var ErrBuilt = errors.New("peripheral is already built")

// A Peripheral is a GATT server driving a Radio.
//
// Events raised by the radio update the set of connected centrals and the
// advertising state immediately; handlers registered with Irq run later,
// one at a time, on the loop run by Serve.
type Peripheral struct {
	radio Radio
	log   logrus.FieldLogger

	// advertising content, encoded by Build
	name        string
	appearance  uint16
	services    []UUID
	serviceData []byte
	payload     []byte
	depth       int

	conns    *connRegistry
	adv      *advertiser
	loop     *loop
	handlers atomic.Pointer[handlerSet]

	activated bool // set by the first successful Activate
	built     atomic.Bool
	closed    atomic.Bool
	serving   atomic.Bool

	quit      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewPeripheral creates a Peripheral on r with the specified options.
// See also Peripheral.Option.
func NewPeripheral(r Radio, opts ...Option) *Peripheral {
	conns := newConnRegistry()
	p := &Peripheral{
		radio: r,
		log:   logrus.StandardLogger(),
		name:  DefaultName,
		depth: DefaultQueueDepth,
		conns: conns,
		adv:   newAdvertiser(r, conns),
		quit:  make(chan struct{}),
	}
	p.Irq()
	p.Option(opts...)
	p.loop = newLoop(p.depth, p.log)
	return p
}

// Build activates the radio, registers svcs and assembles the advertising
// payload. If auto-advertising is on, it starts advertising.
// Build may be retried after a failure; the radio is activated once.
// The returned HandleTable lists the value handles of svcs in order.
func (p *Peripheral) Build(svcs ...*Service) (HandleTable, error) {
	if p.closed.Load() {
		return HandleTable{}, ErrClosed
	}
	if p.built.Load() {
		return HandleTable{}, ErrBuilt
	}
	payload, err := Encode(AdvertisingParams{
		Name:        p.name,
		Services:    p.services,
		ServiceData: p.serviceData,
		Appearance:  p.appearance,
		Payload:     p.payload,
	})
	if err != nil {
		return HandleTable{}, err
	}

	if !p.activated {
		if err := p.radio.Activate(); err != nil {
			return HandleTable{}, fmt.Errorf("activate radio: %w", err)
		}
		p.activated = true
	}
	ht, err := p.radio.RegisterServices(svcs)
	if err != nil {
		return HandleTable{}, fmt.Errorf("register services: %w", err)
	}
	p.radio.RegisterEventCallback(p.irq)

	p.adv.setPayload(payload)
	p.built.Store(true)
	p.log.WithFields(logrus.Fields{
		"name":     p.name,
		"services": len(svcs),
		"payload":  fmt.Sprintf("%x", payload),
	}).Debug("peripheral built")

	if err := p.adv.reevaluate(); err != nil {
		return ht, err
	}
	return ht, nil
}

// irq receives events from the radio. It may run in a context that must
// not block, so it only updates the registry and the advertising state
// and queues the event for the loop.
func (p *Peripheral) irq(ev Event) {
	if p.closed.Load() {
		return
	}
	switch ev.Class {
	case EventCentralConnect:
		p.adv.connected(ev.Conn)
		p.adv.kick()
	case EventCentralDisconnect:
		p.adv.disconnected(ev.Conn)
		p.adv.kick()
	}
	p.loop.post(workItem{ev: ev, hs: p.handlers.Load()})
}

// dispatch hands one event to its callback. It runs on the loop holding
// the turn.
func (p *Peripheral) dispatch(ctx context.Context, it workItem) {
	log := p.log.WithFields(logrus.Fields{"event": it.ev.Class, "conn": it.ev.Conn})
	cb := it.hs.lookup(it.ev.Class)
	if cb.Absent() {
		if it.hs != nil && it.hs.unhandled != nil {
			runToLog(log, func() { it.hs.unhandled(it.ev) })
			return
		}
		log.Debug("event dropped, no handler")
		return
	}

	req := Request{Event: it.ev, Peripheral: p}
	if it.ev.Class == EventGattsWrite {
		log = log.WithField("attr", it.ev.Attr)
		v, err := p.radio.ReadValue(it.ev.Attr)
		if err != nil {
			log.WithError(err).Warn("cannot read written value")
			return
		}
		req.Value = v
	}

	switch cb.kind {
	case callbackDirect, callbackBound:
		runToLog(log, func() { cb.fn(req) })
	case callbackSpawn:
		var t Task
		runToLog(log, func() { t = cb.spawn(req) })
		if t != nil {
			p.loop.spawn(ctx, t, log)
		}
	}
}

// Serve runs the loop that dispatches events to handlers and re-arms
// advertising after connection changes. It returns when ctx is done,
// with ctx.Err(), or when the peripheral is closed, with nil.
func (p *Peripheral) Serve(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.serving.CompareAndSwap(false, true) {
		return errors.New("peripheral is already serving")
	}
	defer p.serving.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.adv.run(ctx, p.log)
	}()
	p.loop.run(ctx, p.dispatch)
	wg.Wait()

	if p.closed.Load() {
		return nil
	}
	return ctx.Err()
}

// Advertise starts advertising, at interval if it is positive.
// auto sets whether advertising restarts by itself after a central
// disconnects. Advertise does nothing if already advertising.
func (p *Peripheral) Advertise(interval time.Duration, auto bool) error {
	if !p.built.Load() {
		return ErrNotBuilt
	}
	return p.adv.advertise(interval, auto)
}

// StopAdvertising stops advertising and turns auto-advertising off.
func (p *Peripheral) StopAdvertising() error {
	if !p.built.Load() {
		return ErrNotBuilt
	}
	return p.adv.stop()
}

// State returns the advertising state.
func (p *Peripheral) State() AdvertisingState {
	return p.adv.State()
}

// Connections returns the handles of the connected centrals, in
// ascending order.
func (p *Peripheral) Connections() []ConnHandle {
	return p.conns.snapshot()
}

// NumConnections returns the number of connected centrals.
func (p *Peripheral) NumConnections() int {
	return p.conns.count()
}

// DroppedEvents returns how many events were lost because the dispatch
// queue was full.
func (p *Peripheral) DroppedEvents() uint64 {
	return p.loop.dropped.Load()
}

func (p *Peripheral) ready() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.built.Load() {
		return ErrNotBuilt
	}
	return nil
}

// Write stores b as the local value of a. If notify is set, every
// connected central is then notified of the stored value.
func (p *Peripheral) Write(a Attr, b []byte, notify bool) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.radio.WriteValue(a, b); err != nil {
		return fmt.Errorf("write attr %d: %w", a, err)
	}
	if notify {
		return p.notifyAll(a, nil)
	}
	return nil
}

// Read returns the local value of a.
func (p *Peripheral) Read(a Attr) ([]byte, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	b, err := p.radio.ReadValue(a)
	if err != nil {
		return nil, fmt.Errorf("read attr %d: %w", a, err)
	}
	return b, nil
}

// Notify sends b as a notification of a to every connected central,
// without changing the local value.
func (p *Peripheral) Notify(a Attr, b []byte) error {
	if err := p.ready(); err != nil {
		return err
	}
	return p.notifyAll(a, b)
}

// notifyAll notifies the centrals connected when it starts. A central that
// disconnects meanwhile is skipped, and its failure ignored.
func (p *Peripheral) notifyAll(a Attr, b []byte) error {
	if bc, ok := p.radio.(Broadcaster); ok {
		if p.conns.count() == 0 {
			return nil
		}
		if err := bc.Broadcast(a, b); err != nil {
			return fmt.Errorf("broadcast attr %d: %w", a, err)
		}
		return nil
	}

	var errs []error
	for _, h := range p.conns.snapshot() {
		if !p.conns.contains(h) {
			continue
		}
		if err := p.radio.Notify(h, a, b); err != nil {
			log := p.log.WithFields(logrus.Fields{"conn": h, "attr": a})
			if !p.conns.contains(h) {
				log.WithError(err).Debug("notify raced a disconnect")
				continue
			}
			log.WithError(err).Warn("notify failed")
			errs = append(errs, fmt.Errorf("notify conn %d: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

// SetWriteBuffer sets how many bytes a central may write to a, and whether
// successive writes are appended instead of replacing the value.
func (p *Peripheral) SetWriteBuffer(a Attr, n int, append bool) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.radio.SetWriteBuffer(a, n, append); err != nil {
		return fmt.Errorf("set write buffer of attr %d: %w", a, err)
	}
	return nil
}

// Close stops advertising, disconnects every central and stops Serve.
// Handlers are not called for the disconnections.
func (p *Peripheral) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		var errs []error
		if p.built.Load() {
			if err := p.adv.close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, h := range p.conns.drain() {
			if err := p.radio.Disconnect(h); err != nil {
				errs = append(errs, fmt.Errorf("disconnect conn %d: %w", h, err))
			}
		}
		close(p.quit)
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
