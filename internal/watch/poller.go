// Package watch keeps an observer's view of the live encounter current by
// polling the source of truth on the observer's own timer.
//
// Every poll replaces the view wholesale; nothing is merged field by field.
// Polls are numbered as they are issued and a response is applied only if no
// later-issued poll has already settled, so a slow response can never
// overwrite a newer one.
package watch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// Defaults applied by NewPoller.
const (
	DefaultInterval         = 2 * time.Second
	DefaultFailureThreshold = 3
)

// ErrSuperseded is returned by Poll when its response arrived after a newer
// poll had already settled and was therefore discarded.
var ErrSuperseded = errors.New("poll superseded by a newer poll")

// FetchFunc retrieves the full live encounter. It returns (nil, nil) when no
// encounter is live.
type FetchFunc func(ctx context.Context) (*combat.Encounter, error)

// LiveSource is anything that can report the single live encounter.
type LiveSource interface {
	CurrentEncounter(ctx context.Context) (*combat.Encounter, error)
}

// LiveFetcher adapts src to a FetchFunc, mapping "no live encounter" to (nil, nil).
func LiveFetcher(src LiveSource) FetchFunc {
	return func(ctx context.Context) (*combat.Encounter, error) {
		enc, err := src.CurrentEncounter(ctx)
		if errors.Is(err, combat.ErrNotFound) {
			return nil, nil
		}
		return enc, err
	}
}

// Snapshot is an observer's local view.
type Snapshot struct {
	// Encounter is the last applied live encounter, or nil if none was live.
	Encounter *combat.Encounter
	// Seq is the sequence number of the poll that produced Encounter; 0 before
	// the first successful poll.
	Seq uint64
	// FetchedAt is when Encounter was applied.
	FetchedAt time.Time
	// Failures counts consecutive failed polls since the last success.
	Failures int
	// LastErr is the most recent poll failure, cleared on success.
	LastErr error
}

// Stale reports whether the view has not been refreshed since a failure.
func (s Snapshot) Stale() bool { return s.Failures > 0 }

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the polling cadence for Run.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures trigger
// OnPersistentFailure.
func WithFailureThreshold(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithPollTimeout bounds each fetch. Zero leaves fetches bounded only by the
// Run context.
func WithPollTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// OnUpdate registers fn to receive every applied snapshot, in apply order.
// fn may call View but must not call Poll.
func OnUpdate(fn func(Snapshot)) Option {
	return func(p *Poller) { p.onUpdate = fn }
}

// OnPersistentFailure registers fn to be called once when consecutive failures
// reach the threshold. It fires again only after a success resets the count.
func OnPersistentFailure(fn func(err error, failures int)) Option {
	return func(p *Poller) { p.onFailure = fn }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller maintains one observer's Snapshot.
type Poller struct {
	fetch     FetchFunc
	interval  time.Duration
	threshold int
	timeout   time.Duration
	logger    *zap.Logger
	onUpdate  func(Snapshot)
	onFailure func(error, int)
	now       func() time.Time

	issued atomic.Uint64

	mu       sync.Mutex
	view     Snapshot
	settled  uint64 // highest sequence whose response has been processed
	reported bool

	// deliverMu orders callbacks by settle order without holding mu.
	deliverMu sync.Mutex
	inflight  sync.WaitGroup
}

// NewPoller creates a Poller over fetch.
//
// Precondition: fetch must be non-nil.
func NewPoller(fetch FetchFunc, opts ...Option) *Poller {
	p := &Poller{
		fetch:     fetch,
		interval:  DefaultInterval,
		threshold: DefaultFailureThreshold,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// View returns the current snapshot. The encounter is a copy.
func (p *Poller) View() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.view
	if v.Encounter != nil {
		v.Encounter = v.Encounter.Clone()
	}
	return v
}

// Poll fetches once and settles the response.
//
// Postcondition: Returns nil if the response was applied, ErrSuperseded if it
// was discarded, or the fetch error. A failed fetch leaves the view unchanged.
func (p *Poller) Poll(ctx context.Context) error {
	seq := p.issued.Add(1)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	enc, err := p.fetch(ctx)
	return p.settle(seq, enc, err)
}

// Run polls immediately and then on every interval tick until ctx is done.
// A slow poll does not delay the next tick. Run returns after every poll it
// started has settled.
func (p *Poller) Run(ctx context.Context) error {
	defer p.inflight.Wait()

	p.spawn(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.spawn(ctx)
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		_ = p.Poll(ctx)
	}()
}

func (p *Poller) settle(seq uint64, enc *combat.Encounter, fetchErr error) error {
	p.mu.Lock()
	if settled := p.settled; seq <= settled {
		p.mu.Unlock()
		p.logger.Debug("discarding superseded poll",
			zap.Uint64("seq", seq),
			zap.Uint64("settled", settled),
		)
		return ErrSuperseded
	}
	p.settled = seq

	if fetchErr != nil {
		p.view.Failures++
		p.view.LastErr = fetchErr
		failures := p.view.Failures
		fire := failures >= p.threshold && !p.reported
		if fire {
			p.reported = true
		}
		p.deliverMu.Lock()
		p.mu.Unlock()
		defer p.deliverMu.Unlock()

		if fire {
			p.logger.Error("live encounter unreachable",
				zap.Int("failures", failures),
				zap.Error(fetchErr),
			)
			if p.onFailure != nil {
				p.onFailure(fetchErr, failures)
			}
		} else {
			p.logger.Warn("poll failed", zap.Int("failures", failures), zap.Error(fetchErr))
		}
		return fetchErr
	}

	p.view = Snapshot{Seq: seq, FetchedAt: p.now()}
	if enc != nil {
		p.view.Encounter = enc.Clone()
	}
	p.reported = false
	snap := p.view
	if snap.Encounter != nil {
		snap.Encounter = snap.Encounter.Clone()
	}
	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	return nil
}
