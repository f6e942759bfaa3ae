package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns each result in sequence, repeating the last
// one forever, and counts calls.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []Status
	calls   int
	block   chan struct{} // when set, the first call waits on it
}

func (f *scriptedFetcher) DepositStatus(ctx context.Context, hash string) (*StatusResult, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	block := f.block
	f.block = nil
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return &StatusResult{
		Deposit: DepositRecord{ArbTxHash: hash, Status: f.results[i]},
		Step:    StatusStep(f.results[i]),
	}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForTerminal(t *testing.T, updates <-chan Snapshot) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.State == PollTerminal {
				return s
			}
		case <-deadline:
			t.Fatal("poller never reached terminal state")
		}
	}
}

func TestPollerStopsOnCompleted(t *testing.T) {
	f := &scriptedFetcher{results: []Status{StatusDetected, StatusConfirmed, StatusCompleted}}
	updates := make(chan Snapshot, 32)
	p := NewPoller(f, 5*time.Millisecond, func(s Snapshot) { updates <- s })
	defer p.Close()

	p.Track("0xaa")
	s := waitForTerminal(t, updates)
	require.Equal(t, StatusCompleted, s.Result.Deposit.Status)

	// No timer re-armed after the terminal fetch.
	n := f.callCount()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, f.callCount(), "poller must stop fetching after COMPLETED")
}

func TestPollerStopsOnOffPathTerminals(t *testing.T) {
	for _, status := range []Status{StatusOrphaned, StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := &scriptedFetcher{results: []Status{StatusDetected, status}}
			updates := make(chan Snapshot, 32)
			p := NewPoller(f, 5*time.Millisecond, func(s Snapshot) { updates <- s })
			defer p.Close()

			p.Track("0xbb")
			s := waitForTerminal(t, updates)
			require.Equal(t, status, s.Result.Deposit.Status)

			n := f.callCount()
			time.Sleep(50 * time.Millisecond)
			require.Equal(t, n, f.callCount())
		})
	}
}

func TestPollerColdStartFetchesImmediately(t *testing.T) {
	f := &scriptedFetcher{results: []Status{StatusDetected}}
	updates := make(chan Snapshot, 32)
	// Long interval: only the cold-start fetch can account for a call.
	p := NewPoller(f, time.Hour, func(s Snapshot) { updates <- s })
	defer p.Close()

	p.Track("0xcc")
	select {
	case s := <-updates:
		require.Equal(t, StatusDetected, s.Result.Deposit.Status)
		require.False(t, s.Loading)
	case <-time.After(2 * time.Second):
		t.Fatal("no cold-start fetch")
	}
	require.Equal(t, 1, f.callCount())
}

func TestPollerNilHashClearsState(t *testing.T) {
	f := &scriptedFetcher{results: []Status{StatusDetected}}
	p := NewPoller(f, time.Hour, nil)
	p.Track("0xdd")
	p.Track("")

	snap := p.Snapshot()
	require.Equal(t, PollIdle, snap.State)
	require.Nil(t, snap.Result)
	require.Empty(t, snap.Err)
}

func TestPollerDiscardsStaleGenerationResponse(t *testing.T) {
	release := make(chan struct{})
	slow := &scriptedFetcher{results: []Status{StatusSent}, block: release}
	p := NewPoller(slow, time.Hour, nil)
	defer p.Close()

	// First session's fetch is stuck in flight...
	p.Track("0xold")
	// ...when a new target supersedes it.
	p.Track("0xnew")
	close(release)

	require.Eventually(t, func() bool {
		s := p.Snapshot()
		return s.Result != nil && s.Result.Deposit.ArbTxHash == "0xnew"
	}, 2*time.Second, 5*time.Millisecond)

	s := p.Snapshot()
	require.Equal(t, "0xnew", s.Hash)
	require.Equal(t, "0xnew", s.Result.Deposit.ArbTxHash, "stale response must not overwrite newer state")
}

func TestPollerSurfacesFetchErrors(t *testing.T) {
	f := &failingFetcher{}
	updates := make(chan Snapshot, 8)
	p := NewPoller(f, time.Hour, func(s Snapshot) { updates <- s })
	defer p.Close()

	p.Track("0xee")
	select {
	case s := <-updates:
		require.Equal(t, "backend unreachable", s.Err)
		require.Nil(t, s.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
	}
}

type failingFetcher struct{}

func (failingFetcher) DepositStatus(ctx context.Context, hash string) (*StatusResult, error) {
	return nil, &APIError{Status: 502, Message: "backend unreachable"}
}
