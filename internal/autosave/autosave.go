// Package autosave keeps an editing session's buffer and persists it after a
// quiet period. Edits are applied locally first and never rejected; saving
// happens behind them.
package autosave

//go:generate mockgen -source=autosave.go -destination=mock_persister_test.go -package=autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("autosave: coordinator closed")

const DefaultQuiet = 2 * time.Second

// Persister stores the full content of one entity, overwriting what was there.
type Persister interface {
	Save(ctx context.Context, id domain.ProjectID, content []byte) error
}

type Status int

const (
	StatusClean Status = iota
	StatusDirty
	StatusSaving
	StatusSaved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDirty:
		return "unsaved changes"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusFailed:
		return "not saved"
	default:
		return "clean"
	}
}

type Options struct {
	// Quiet is the debounce window; DefaultQuiet when zero.
	Quiet time.Duration
	// Timeout bounds one persistence request; unbounded when zero.
	Timeout time.Duration
	Clock   Clock
	// OnStatus observes status changes. It runs outside the coordinator lock
	// and must not block for long.
	OnStatus func(Status)
}

// Coordinator owns one editing session's buffer. Flushes are serialized and
// always carry the freshest buffer at the moment they start, so a flush
// triggered during an in-flight request goes out after it settles.
type Coordinator struct {
	id        domain.ProjectID
	persister Persister
	opts      Options

	mu      sync.Mutex
	buf     []byte
	version uint64 // bumped on every edit
	saved   uint64 // last version persisted successfully
	timer   Timer
	gen     uint64 // invalidates timers that were stopped too late
	status  Status
	lastErr error
	closed  bool

	flushMu sync.Mutex
}

func New(id domain.ProjectID, p Persister, opts Options) *Coordinator {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Coordinator{id: id, persister: p, opts: opts}
}

// Load seeds the buffer with already persisted content.
func (c *Coordinator) Load(content []byte) {
	c.mu.Lock()
	c.buf = clone(content)
	c.saved = c.version
	c.status = StatusClean
	c.mu.Unlock()
}

// Edit replaces the buffer and restarts the quiet period.
func (c *Coordinator) Edit(content []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = clone(content)
	c.version++
	c.scheduleLocked()
	notify := c.setStatusLocked(StatusDirty)
	c.mu.Unlock()
	notify()
}

// Save flushes now and cancels any pending scheduled flush.
func (c *Coordinator) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancelLocked()
	c.mu.Unlock()
	return c.flush(ctx, true)
}

// Close stops the timer and flushes once more if there are unsaved edits.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancelLocked()
	c.mu.Unlock()
	return c.flush(ctx, false)
}

func (c *Coordinator) Content() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.buf)
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err is the error of the last failed flush, nil after a success.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) scheduleLocked() {
	c.cancelLocked()
	gen := c.gen
	c.timer = c.opts.Clock.AfterFunc(c.opts.Quiet, func() { c.fire(gen) })
}

func (c *Coordinator) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	// No automatic retry: a failure waits for the next edit.
	if err := c.flush(context.Background(), false); err != nil {
		log.Warn().Err(err).Str("module", "autosave").Str("project_id", c.id.String()).Msg("auto-save failed")
	}
}

// flush sends the current buffer. Unless force is set it skips when nothing
// changed since the last successful save.
func (c *Coordinator) flush(ctx context.Context, force bool) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if !force && c.version == c.saved {
		c.mu.Unlock()
		return nil
	}
	snapshot := clone(c.buf)
	v := c.version
	notify := c.setStatusLocked(StatusSaving)
	c.mu.Unlock()
	notify()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	err := c.persister.Save(ctx, c.id, snapshot)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		notify = c.setStatusLocked(StatusFailed)
	} else {
		c.lastErr = nil
		if v > c.saved {
			c.saved = v
		}
		if c.version == c.saved {
			notify = c.setStatusLocked(StatusSaved)
		} else {
			notify = c.setStatusLocked(StatusDirty)
		}
	}
	c.mu.Unlock()
	notify()
	return err
}

func (c *Coordinator) setStatusLocked(s Status) func() {
	if c.status == s {
		return func() {}
	}
	c.status = s
	if c.opts.OnStatus == nil {
		return func() {}
	}
	cb := c.opts.OnStatus
	return func() { cb(s) }
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
