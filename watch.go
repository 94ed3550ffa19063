// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrQueueEmpty is returned by Dequeue when no event arrived in time
var ErrQueueEmpty = errors.New("watch queue empty")

// errStreamClosed reports an event stream the server ended
var errStreamClosed = errors.New("event stream closed by server")

// ChangeEvent is one change notification delivered to a watcher
type ChangeEvent struct {
	// EventID is the server event id, empty for poll results
	EventID string

	// MO holds the changed object; for push events only the changed
	// properties are set
	MO *ManagedObject

	// ChangeList names the properties carried by the event
	ChangeList []string
}

// WatchOptions describes a watch registration.
//
// A registration with PollInterval set polls ManagedObject's Prop; any other
// registration is fed from the event stream. ClassID and ManagedObject are
// mutually exclusive; with neither, every event matches.
type WatchOptions struct {
	// ClassID limits push events to one class
	ClassID string

	// ManagedObject limits events to one dn; required for polling
	ManagedObject *ManagedObject

	// Filter further limits push events, evaluated client side
	Filter *Filter

	// Prop is the property compared against the value sets
	Prop string

	// SuccessValues and FailureValues end the watch when Prop takes one of them
	SuccessValues []string
	FailureValues []string

	// TransientValues, when given, are the only values that keep a poll
	// watch alive besides success and failure
	TransientValues []string

	// PollInterval selects poll mode
	PollInterval time.Duration

	// Timeout removes the watch with ErrWatchTimeout when it expires
	Timeout time.Duration

	// QueueSize overrides Client.WatchQueueSize
	QueueSize int

	// Callback receives events on the dispatcher goroutine. Without one,
	// events stay queued for Dequeue.
	Callback func(ChangeEvent)
}

// WatchBlock is a registered watcher with its bounded FIFO queue
type WatchBlock struct {
	// ID identifies the registration
	ID uuid.UUID

	opts     WatchOptions
	dn       string
	queue    chan ChangeEvent
	overflow atomic.Bool
	created  time.Time
	deadline time.Time

	// nextPoll is only touched by the dispatcher goroutine
	nextPoll time.Time

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

// IsPoll reports whether the watcher polls instead of listening to the stream
func (wb *WatchBlock) IsPoll() bool { return wb.opts.PollInterval > 0 }

// Options returns the registration options
func (wb *WatchBlock) Options() WatchOptions { return wb.opts }

// Created returns the registration time
func (wb *WatchBlock) Created() time.Time { return wb.created }

// Capacity returns the queue capacity
func (wb *WatchBlock) Capacity() int { return cap(wb.queue) }

// Len returns the number of queued events
func (wb *WatchBlock) Len() int { return len(wb.queue) }

// Overflowed reports whether an event was dropped because the queue was full
func (wb *WatchBlock) Overflowed() bool { return wb.overflow.Load() }

// Err returns the last error recorded on the watcher
func (wb *WatchBlock) Err() error {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.err
}

// Done is closed when the watcher is deregistered
func (wb *WatchBlock) Done() <-chan struct{} { return wb.done }

// Wait blocks until the watcher is deregistered and returns its recorded error
func (wb *WatchBlock) Wait(ctx context.Context) error {
	select {
	case <-wb.done:
		return wb.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest queued event, waiting up to timeout.
// A zero timeout waits until ctx is done.
//
// Example:
//
//	wb, _ := client.AddEventHandler(ctx, ucs.WatchOptions{ClassID: "lsServer"})
//	for {
//	    ev, err := wb.Dequeue(ctx, 30*time.Second)
//	    if errors.Is(err, ucs.ErrQueueEmpty) {
//	        continue
//	    }
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println(ev.MO.Dn(), ev.ChangeList)
//	}
func (wb *WatchBlock) Dequeue(ctx context.Context, timeout time.Duration) (ChangeEvent, error) {
	select {
	case ev := <-wb.queue:
		return ev, nil
	default:
	}
	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}
	select {
	case ev := <-wb.queue:
		return ev, nil
	case <-timeoutC:
		return ChangeEvent{}, ErrQueueEmpty
	case <-ctx.Done():
		return ChangeEvent{}, ctx.Err()
	}
}

// enqueue adds ev without blocking. When the queue is full ev is dropped and
// the overflow flag set.
func (wb *WatchBlock) enqueue(ev ChangeEvent) bool {
	select {
	case wb.queue <- ev:
		return true
	default:
		wb.overflow.Store(true)
		return false
	}
}

func (wb *WatchBlock) setErr(err error) {
	wb.mu.Lock()
	wb.err = err
	wb.mu.Unlock()
}

func (wb *WatchBlock) finish() {
	wb.once.Do(func() { close(wb.done) })
}

// matches reports whether a push event is meant for the watcher
func (wb *WatchBlock) matches(ev ChangeEvent) bool {
	if ev.MO == nil {
		return false
	}
	if wb.opts.ClassID != "" && !strings.EqualFold(wb.opts.ClassID, ev.MO.ClassID()) {
		return false
	}
	if wb.dn != "" && wb.dn != ev.MO.Dn() {
		return false
	}
	if wb.opts.Filter != nil && !wb.opts.Filter.Match(ev.MO) {
		return false
	}
	return true
}

// outcome classifies the watched property value of mo.
// terminal is true for a success, failure or unexpected value.
func (wb *WatchBlock) outcome(mo *ManagedObject) (terminal bool) {
	if wb.opts.Prop == "" || mo == nil {
		return false
	}
	v, ok := mo.Lookup(wb.opts.Prop)
	if !ok {
		return false
	}
	if contains(wb.opts.SuccessValues, v) || contains(wb.opts.FailureValues, v) {
		return true
	}
	if wb.IsPoll() && len(wb.opts.TransientValues) > 0 && !contains(wb.opts.TransientValues, v) {
		return true
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// watchEngine runs the event stream reader and the dispatcher of one client
type watchEngine struct {
	client *Client

	// mu guards the watcher list and the task handles
	mu       sync.Mutex
	watchers []*WatchBlock

	// signal wakes the dispatcher; it is separate from mu
	signal chan struct{}

	streamCancel   context.CancelFunc
	streamDone     chan struct{}
	dispatchCancel context.CancelFunc
}

func newWatchEngine(c *Client) *watchEngine {
	return &watchEngine{client: c, signal: make(chan struct{}, 1)}
}

func (e *watchEngine) notify() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// AddEventHandler registers a watcher.
//
// The dispatcher starts with the first registration and the event stream
// with the first push registration; both stop when the last registration is
// removed.
//
// Example (poll until associated):
//
//	wb, err := client.AddEventHandler(ctx, ucs.WatchOptions{
//	    ManagedObject: sp,
//	    Prop:          "AssocState",
//	    SuccessValues: []string{"associated"},
//	    FailureValues: []string{"failed"},
//	    PollInterval:  5 * time.Second,
//	    Timeout:       10 * time.Minute,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := wb.Wait(ctx); err != nil {
//	    log.Fatal(err) // ucs.ErrWatchTimeout
//	}
func (c *Client) AddEventHandler(ctx context.Context, opts WatchOptions) (*WatchBlock, error) {
	const op = "AddEventHandler"
	if opts.ClassID != "" && opts.ManagedObject != nil {
		return nil, newValidationError(op, "ClassID and ManagedObject are mutually exclusive")
	}
	if opts.ManagedObject != nil && opts.ManagedObject.Dn() == "" {
		return nil, newValidationError(op, "ManagedObject must have a dn")
	}
	if opts.PollInterval < 0 || opts.Timeout < 0 || opts.QueueSize < 0 {
		return nil, newValidationError(op, "poll interval, timeout and queue size cannot be negative")
	}
	if opts.PollInterval > 0 {
		if opts.ManagedObject == nil {
			return nil, newValidationError(op, "polling requires ManagedObject")
		}
		if opts.Prop == "" {
			return nil, newValidationError(op, "polling requires Prop")
		}
	}
	if !c.IsLoggedIn() {
		return nil, &ValidationError{Operation: op, Message: "session is not logged in", Err: ErrNotLoggedIn}
	}

	size := opts.QueueSize
	if size == 0 {
		size = c.WatchQueueSize
	}
	now := time.Now()
	wb := &WatchBlock{
		ID:       uuid.New(),
		opts:     opts,
		queue:    make(chan ChangeEvent, size),
		created:  now,
		nextPoll: now,
		done:     make(chan struct{}),
	}
	if opts.ManagedObject != nil {
		wb.dn = opts.ManagedObject.Dn()
	}
	if opts.Timeout > 0 {
		wb.deadline = now.Add(opts.Timeout)
	}

	c.watch.add(wb)
	c.logger.Debug(ctx, "UCS watch registered",
		"id", wb.ID.String(),
		"poll", wb.IsPoll(),
		"class", opts.ClassID,
		"dn", wb.dn)
	return wb, nil
}

// RemoveEventHandler deregisters wb. Removing an unknown watcher is a no-op.
func (c *Client) RemoveEventHandler(wb *WatchBlock) {
	if wb == nil {
		return
	}
	c.watch.remove(wb)
}

// WatchBlocks returns the registered watchers
func (c *Client) WatchBlocks() []*WatchBlock {
	return c.watch.snapshot()
}

// DrainWatches deregisters every watcher and returns how many there were
func (c *Client) DrainWatches() int {
	return c.watch.drain()
}

func (e *watchEngine) add(wb *WatchBlock) {
	e.mu.Lock()
	e.watchers = append(e.watchers, wb)
	if e.dispatchCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		e.dispatchCancel = cancel
		go e.runDispatcher(ctx)
	}
	if !wb.IsPoll() && e.streamCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		e.streamCancel, e.streamDone = cancel, done
		go e.runStream(ctx, done)
	}
	e.mu.Unlock()
	e.notify()
}

func (e *watchEngine) remove(wb *WatchBlock) {
	e.mu.Lock()
	for i, w := range e.watchers {
		if w == wb {
			e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
			break
		}
	}
	e.stopIdleLocked()
	e.mu.Unlock()
	wb.finish()
}

// stopIdleLocked stops the tasks no registration needs any more.
// PRECONDITION: caller holds e.mu.
func (e *watchEngine) stopIdleLocked() {
	push := 0
	for _, w := range e.watchers {
		if !w.IsPoll() {
			push++
		}
	}
	if push == 0 && e.streamCancel != nil {
		e.streamCancel()
		e.streamCancel = nil
	}
	if len(e.watchers) == 0 && e.dispatchCancel != nil {
		e.dispatchCancel()
		e.dispatchCancel = nil
	}
}

func (e *watchEngine) snapshot() []*WatchBlock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*WatchBlock(nil), e.watchers...)
}

func (e *watchEngine) drain() int {
	e.mu.Lock()
	drained := e.watchers
	e.watchers = nil
	e.stopIdleLocked()
	e.mu.Unlock()
	for _, wb := range drained {
		wb.finish()
	}
	return len(drained)
}

// stop drains all watchers and waits for the stream reader to release its
// connection.
func (e *watchEngine) stop() {
	e.mu.Lock()
	done := e.streamDone
	e.mu.Unlock()
	e.drain()
	if done != nil {
		<-done
	}
}

// running reports whether the stream reader and dispatcher are active
func (e *watchEngine) running() (stream, dispatcher bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streamCancel != nil, e.dispatchCancel != nil
}

// runDispatcher delivers queued push events to callbacks, polls due poll
// watchers and expires timed-out watchers. Between rounds it sleeps on the
// signal channel and on one timer set to the earliest deadline.
func (e *watchEngine) runDispatcher(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.deliverQueued(ctx)
		next := e.pollAndExpire(ctx)

		var timerC <-chan time.Time
		if !next.IsZero() {
			timer.Reset(max(time.Until(next), 0))
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-e.signal:
		case <-timerC:
		}
	}
}

// deliverQueued hands queued events to push watchers that have a callback
func (e *watchEngine) deliverQueued(ctx context.Context) {
	for _, wb := range e.snapshot() {
		if wb.IsPoll() || wb.opts.Callback == nil {
			continue
		}
	drain:
		for {
			if ctx.Err() != nil {
				return
			}
			select {
			case ev := <-wb.queue:
				wb.opts.Callback(ev)
				if wb.outcome(ev.MO) {
					e.remove(wb)
					break drain
				}
			default:
				break drain
			}
		}
	}
}

// pollAndExpire runs due polls and timeouts and returns the earliest
// outstanding deadline, zero when there is none.
func (e *watchEngine) pollAndExpire(ctx context.Context) time.Time {
	var next time.Time
	earliest := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}

	for _, wb := range e.snapshot() {
		if ctx.Err() != nil {
			return time.Time{}
		}
		now := time.Now()
		if !wb.deadline.IsZero() && !now.Before(wb.deadline) {
			wb.setErr(ErrWatchTimeout)
			e.client.logger.Debug(ctx, "UCS watch timed out", "id", wb.ID.String())
			e.remove(wb)
			continue
		}
		earliest(wb.deadline)
		if !wb.IsPoll() {
			continue
		}
		if now.Before(wb.nextPoll) {
			earliest(wb.nextPoll)
			continue
		}
		if e.poll(ctx, wb) {
			e.remove(wb)
			continue
		}
		wb.nextPoll = time.Now().Add(wb.opts.PollInterval)
		earliest(wb.nextPoll)
	}
	return next
}

// poll resolves the watched object once and reports whether the watch ended
func (e *watchEngine) poll(ctx context.Context, wb *WatchBlock) bool {
	mo, err := e.client.ConfigResolveDn(ctx, wb.dn)
	if err != nil {
		if ctx.Err() == nil {
			wb.setErr(err)
			e.client.logger.Warn(ctx, "UCS watch poll failed", "id", wb.ID.String(), "dn", wb.dn, "error", err.Error())
		}
		return false
	}
	wb.setErr(nil)
	if !wb.outcome(mo) {
		return false
	}
	ev := ChangeEvent{MO: mo, ChangeList: []string{wb.opts.Prop}}
	if wb.opts.Callback != nil {
		wb.opts.Callback(ev)
	} else {
		wb.enqueue(ev)
	}
	return true
}

// newStreamBackoff builds the reconnect policy of the event stream
func (c *Client) newStreamBackoff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.BackoffMinDelay
	exp.MaxInterval = c.BackoffMaxDelay
	exp.Multiplier = c.BackoffDelayFactor
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = exp
	if c.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}

// runStream keeps the event stream open while push registrations remain,
// reconnecting with exponential backoff.
func (e *watchEngine) runStream(ctx context.Context, done chan struct{}) {
	defer close(done)
	c := e.client
	bo := c.newStreamBackoff(ctx)

	err := backoff.RetryNotify(func() error {
		err := e.readStream(ctx, bo)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errStreamClosed
		}
		e.recordStreamError(err)
		return err
	}, bo, func(err error, d time.Duration) {
		c.logger.Warn(ctx, "UCS event stream interrupted, reconnecting",
			"host", c.Host,
			"error", err.Error(),
			"retry_in_ms", d.Milliseconds())
	})

	if ctx.Err() == nil && err != nil {
		c.logger.Error(ctx, "UCS event stream abandoned", "host", c.Host, "error", err.Error())
		e.mu.Lock()
		if e.streamDone == done && e.streamCancel != nil {
			e.streamCancel()
			e.streamCancel = nil
		}
		e.mu.Unlock()
	}
}

// recordStreamError stores err on every push watcher
func (e *watchEngine) recordStreamError(err error) {
	for _, wb := range e.snapshot() {
		if !wb.IsPoll() {
			wb.setErr(err)
		}
	}
}

// readStream posts eventSubscribe and consumes frames until the stream ends.
// Each frame is a decimal byte count on its own line followed by one XML
// document of that size.
func (e *watchEngine) readStream(ctx context.Context, bo backoff.BackOff) error {
	c := e.client
	m := NewExternalMethod(c.registry, MethodEventSubscribe)
	m.Cookie = c.Cookie()
	body, err := MarshalElement(m, WriteAll)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URI(), strings.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Operation: MethodEventSubscribe, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{
			Operation:  MethodEventSubscribe,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected HTTP status %d", resp.StatusCode),
		}
	}
	c.logger.Info(ctx, "UCS event stream opened", "host", c.Host)

	r := bufio.NewReader(resp.Body)
	for {
		frame, err := readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &TransportError{Operation: MethodEventSubscribe, Err: err}
		}
		if frame == nil {
			continue
		}
		bo.Reset()
		e.handleFrame(ctx, frame)
	}
}

// readFrame reads one length-prefixed frame; blank length lines yield nil
func readFrame(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, err
	}
	n, perr := strconv.Atoi(line)
	if perr != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad frame length %q", ErrMalformedResponse, line)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *watchEngine) handleFrame(ctx context.Context, frame []byte) {
	c := e.client
	n, err := ParseNode(bytes.NewReader(frame))
	if err != nil {
		c.logger.Warn(ctx, "UCS event frame skipped", "error", err.Error())
		return
	}
	events := decodeEvents(c.factory.Load(n, c))
	if len(events) == 0 {
		return
	}

	delivered := false
	for _, ev := range events {
		for _, wb := range e.snapshot() {
			if wb.IsPoll() || !wb.matches(ev) {
				continue
			}
			if !wb.enqueue(ev) {
				c.logger.Warn(ctx, "UCS watch queue full, event dropped",
					"id", wb.ID.String(),
					"event_id", ev.EventID,
					"capacity", wb.Capacity())
				continue
			}
			delivered = true
			if wb.opts.Callback == nil && wb.outcome(ev.MO) {
				e.remove(wb)
			}
		}
	}
	if delivered {
		e.notify()
	}
}

// decodeEvents extracts change events from a configMoChangeEvent or from
// the stimuli of a methodVessel batch.
func decodeEvents(el Element) []ChangeEvent {
	switch v := el.(type) {
	case *Method:
		if v.Inner != nil {
			return decodeEvents(v.Inner)
		}
	case *ElementSet:
		var out []ChangeEvent
		for _, it := range v.Items {
			out = append(out, decodeEvents(it)...)
		}
		return out
	case *ExternalMethod:
		switch v.Name() {
		case MethodMethodVessel:
			return decodeEvents(v.Element("inStimuli"))
		case MethodConfigMoChangeEvent:
			cc, ok := v.Element("inConfig").(*ConfigConfig)
			if !ok || cc.MO == nil {
				return nil
			}
			mo := cc.MO
			var changes []string
			for _, name := range mo.Dirty() {
				if name != PropDn && name != PropRn {
					changes = append(changes, name)
				}
			}
			mo.MarkClean()
			return []ChangeEvent{{EventID: v.Param("inEid"), MO: mo, ChangeList: changes}}
		}
	}
	return nil
}
