package bridge

import (
	"context"
	"sync"
	"time"
)

// PollState is the lifecycle of one tracked hash.
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollTerminal
)

func (s PollState) String() string {
	switch s {
	case PollPolling:
		return "polling"
	case PollTerminal:
		return "terminal"
	}
	return "idle"
}

// StatusFetcher is the slice of Client the poller needs.
type StatusFetcher interface {
	DepositStatus(ctx context.Context, hash string) (*StatusResult, error)
}

// Snapshot is the poller's externally visible state at one point in time.
type Snapshot struct {
	Hash    string        `json:"hash"`
	State   PollState     `json:"-"`
	Result  *StatusResult `json:"result"`
	Loading bool          `json:"loading"`
	Err     string        `json:"error,omitempty"`
}

// Poller keeps one transaction hash's status fresh while it can still
// change, then stops. It stops on any terminal status (COMPLETED,
// ORPHANED, FAILED), cancels in-flight work when the tracked hash
// changes, and discards responses from superseded polling sessions so
// an old slow response can never overwrite a newer one.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	onUpdate func(Snapshot)

	mu      sync.Mutex
	hash    string
	state   PollState
	result  *StatusResult
	loading bool
	errMsg  string
	gen     uint64
	cancel  context.CancelFunc
}

const DefaultPollInterval = 5 * time.Second

// NewPoller builds an idle poller. onUpdate may be nil; when set it is
// called outside the poller's lock after every state change.
func NewPoller(fetcher StatusFetcher, interval time.Duration, onUpdate func(Snapshot)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{fetcher: fetcher, interval: interval, onUpdate: onUpdate}
}

// Track switches the poller to a new hash. The previous session is
// cancelled and its responses discarded. An empty hash clears state and
// performs no network activity.
func (p *Poller) Track(hash string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.hash = hash
	p.result = nil
	p.errMsg = ""
	if hash == "" {
		p.state = PollIdle
		p.loading = false
		snap := p.snapshotLocked()
		cb := p.onUpdate
		p.mu.Unlock()
		if cb != nil {
			cb(snap)
		}
		return
	}
	p.state = PollPolling
	p.loading = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	gen := p.gen
	p.mu.Unlock()

	go p.run(ctx, hash, gen)
}

// Close stops any active session and returns the poller to idle.
func (p *Poller) Close() { p.Track("") }

// Refetch triggers an immediate re-sync of the tracked hash, e.g. right
// after submitting a deposit. No-op while idle or terminal.
func (p *Poller) Refetch() {
	p.mu.Lock()
	if p.state != PollPolling || p.cancel == nil {
		p.mu.Unlock()
		return
	}
	hash, gen := p.hash, p.gen
	ctx := context.Background()
	p.mu.Unlock()
	go p.fetch(ctx, hash, gen)
}

// Snapshot returns the current record (nil before the first response),
// loading flag and error message.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	return Snapshot{
		Hash:    p.hash,
		State:   p.state,
		Result:  p.result,
		Loading: p.loading,
		Err:     p.errMsg,
	}
}

func (p *Poller) run(ctx context.Context, hash string, gen uint64) {
	// Cold start: fetch once immediately so the caller is never left
	// with an empty view longer than one round trip.
	if !p.fetch(ctx, hash, gen) {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.fetch(ctx, hash, gen) {
				return
			}
		}
	}
}

// fetch performs one status round trip. Returns false when the session
// should stop: superseded generation, cancelled context, or terminal
// status reached.
func (p *Poller) fetch(ctx context.Context, hash string, gen uint64) bool {
	res, err := p.fetcher.DepositStatus(ctx, hash)

	p.mu.Lock()
	if gen != p.gen {
		// A newer Track superseded this session while the request was
		// in flight; its response must not clobber newer state.
		p.mu.Unlock()
		return false
	}
	if err != nil && ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	p.loading = false
	cont := true
	if err != nil {
		p.errMsg = err.Error()
	} else {
		p.errMsg = ""
		p.result = res
		if res.Deposit.Status.Terminal() {
			p.state = PollTerminal
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			cont = false
		}
	}
	snap := p.snapshotLocked()
	cb := p.onUpdate
	p.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
	return cont
}
