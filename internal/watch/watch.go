// Package watch rebuilds a session when its sources change.
//
// The Controller is the single consumer of a change-event channel and moves
// through idle -> pending -> building -> idle. The first relevant event arms
// the debounce timer; further events while pending reset it. When the timer
// expires the controller issues the next generation and starts one build
// with every path changed since the last build. Events that arrive while
// building are queued and start a new debounce window once the build ends,
// so two builds never overlap.
//
// Typical usage:
//
//	c := watch.New(s, watch.NewFSNotify(logger), watch.LogNotifier{Logger: logger})
//	err := c.Run(ctx)
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/roach88/assetpack/internal/ir"
	"github.com/roach88/assetpack/internal/pipeline"
	"github.com/roach88/assetpack/internal/session"
)

// Op is the kind of a file change.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Event is one file change.
type Event struct {
	Path string
	Op   Op
}

// Watcher subscribes to changes below a set of paths. The channel is closed
// when ctx is done.
type Watcher interface {
	Subscribe(ctx context.Context, paths []string) (<-chan Event, error)
}

// Notifier receives build failures of the watch loop.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// Notify implements Notifier.
func (f NotifierFunc) Notify(err error) { f(err) }

// Timer is the debounce timer. *time.Timer satisfies it through
// NewRealTimer.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop() bool
}

type realTimer struct{ t *time.Timer }

// NewRealTimer starts a wall-clock Timer.
func NewRealTimer(d time.Duration) Timer { return realTimer{t: time.NewTimer(d)} }

func (r realTimer) C() <-chan time.Time   { return r.t.C }
func (r realTimer) Reset(d time.Duration) { r.t.Reset(d) }
func (r realTimer) Stop() bool            { return r.t.Stop() }

// BuildFunc builds generation gen after the changed paths.
type BuildFunc func(ctx context.Context, gen int64, changed []string) error

// State is the controller state.
type State int32

const (
	StateIdle State = iota
	StatePending
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBuilding:
		return "building"
	}
	return "idle"
}

// Stats are point-in-time counters.
type Stats struct {
	Events     int64 `json:"events"`
	Builds     int64 `json:"builds"`
	Failures   int64 `json:"failures"`
	Superseded int64 `json:"superseded"`
}

// Controller runs the incremental rebuild loop.
type Controller struct {
	watcher  Watcher
	notifier Notifier
	build    BuildFunc
	clock    session.Clock
	logger   *slog.Logger
	newTimer func(time.Duration) Timer
	debounce time.Duration
	paths    []string
	watched  func(string) bool

	state atomic.Int32

	events     atomic.Int64
	builds     atomic.Int64
	failures   atomic.Int64
	superseded atomic.Int64
}

// Option configures a Controller.
type Option func(*Controller)

// WithBuild replaces the pipeline build.
func WithBuild(fn BuildFunc) Option {
	return func(c *Controller) { c.build = fn }
}

// WithTimer replaces the debounce timer constructor.
func WithTimer(fn func(time.Duration) Timer) Option {
	return func(c *Controller) { c.newTimer = fn }
}

// WithDebounce overrides the configured debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller watching the session's base directory. Paths
// under the output directory are ignored.
func New(s *session.Session, w Watcher, n Notifier, opts ...Option) *Controller {
	base := s.Config.BaseDir()
	out := s.Config.OutputDir()
	c := &Controller{
		watcher:  w,
		notifier: n,
		clock:    s.Clock,
		logger:   s.Logger,
		newTimer: NewRealTimer,
		debounce: s.Config.DebounceWindow(),
		paths:    []string{base},
		watched: func(p string) bool {
			return within(base, p) && !within(out, p)
		},
		build: func(ctx context.Context, gen int64, changed []string) error {
			_, err := pipeline.Build(ctx, s, gen, changed)
			return err
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Stats returns the current counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Events:     c.events.Load(),
		Builds:     c.builds.Load(),
		Failures:   c.failures.Load(),
		Superseded: c.superseded.Load(),
	}
}

type buildDone struct {
	gen int64
	err error
}

// Run blocks until ctx is cancelled. A failed subscription or a closed event
// stream is a WatchError; build failures are reported to the Notifier and
// the loop continues.
func (c *Controller) Run(ctx context.Context) error {
	events, err := c.watcher.Subscribe(ctx, c.paths)
	if err != nil {
		return ir.NewWatchError("subscribe to source changes", err)
	}
	log := c.logger

	var (
		timer    Timer
		timerC   <-chan time.Time
		building bool
		pending  = make(map[string]bool)
		done     = make(chan buildDone, 1)
	)
	arm := func() {
		if timer == nil {
			timer = c.newTimer(c.debounce)
		} else {
			timer.Reset(c.debounce)
		}
		timerC = timer.C()
		c.setState(StatePending)
	}

	log.Info("watch: started", "paths", c.paths, "debounce", c.debounce)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if building {
				<-done
			}
			c.setState(StateIdle)
			log.Info("watch: stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					events = nil
					continue
				}
				return ir.NewWatchError("source change stream closed", nil)
			}
			if !c.watched(ev.Path) {
				continue
			}
			c.events.Add(1)
			pending[filepath.Clean(ev.Path)] = true
			if building {
				log.Debug("watch: change queued", "path", ev.Path, "op", ev.Op)
				continue
			}
			log.Debug("watch: change detected, debouncing", "path", ev.Path, "op", ev.Op)
			arm()

		case <-timerC:
			timerC = nil
			if building || len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			gen := c.clock.Next()
			building = true
			c.setState(StateBuilding)
			log.Info("watch: rebuilding", "generation", gen, "changed", len(changed))
			go func() {
				done <- buildDone{gen: gen, err: c.build(ctx, gen, changed)}
			}()

		case r := <-done:
			building = false
			c.setState(StateIdle)
			c.finish(r)
			if len(pending) > 0 {
				arm()
			}
		}
	}
}

func (c *Controller) finish(r buildDone) {
	switch {
	case r.err == nil:
		c.builds.Add(1)
		c.logger.Info("watch: rebuild complete", "generation", r.gen)
	case errors.Is(r.err, ir.ErrSuperseded):
		c.superseded.Add(1)
		c.logger.Info("watch: result discarded", "generation", r.gen)
	case errors.Is(r.err, context.Canceled):
		c.logger.Debug("watch: rebuild cancelled", "generation", r.gen)
	default:
		c.failures.Add(1)
		c.logger.Error("watch: rebuild failed", "generation", r.gen, "error", r.err)
		if c.notifier != nil {
			c.notifier.Notify(r.err)
		}
	}
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
