package swaps

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultQuoteTTL is the minimum interval between two fetches for an unchanged request.
const DefaultQuoteTTL = 60 * time.Second

// Fingerprint is a coarse equality key over the swap parameters, used only to
// suppress redundant quote fetches.
type Fingerprint struct {
	InputToken         Token
	OutputToken        Token
	InputAmountDisplay string
	Receiver           common.Address
	Slippage           float64
	Order              RoutePreference
	Timestamp          time.Time
}

// NewFingerprint captures the identifying fields of r at time now.
func NewFingerprint(r SwapRequest, now time.Time) Fingerprint {
	return Fingerprint{
		InputToken:         r.InputToken,
		OutputToken:        r.OutputToken,
		InputAmountDisplay: r.InputAmount.Display,
		Receiver:           r.Receiver,
		Slippage:           r.Slippage,
		Order:              r.Order,
		Timestamp:          now,
	}
}

// Equivalent compares every field except the timestamp.
func (f Fingerprint) Equivalent(o Fingerprint) bool {
	return f.InputToken.Same(o.InputToken) &&
		f.OutputToken.Same(o.OutputToken) &&
		f.InputAmountDisplay == o.InputAmountDisplay &&
		f.Receiver == o.Receiver &&
		f.Slippage == o.Slippage &&
		f.Order == o.Order
}

// Guard decides whether a new quote fetch is warranted. Each session owns its own
// guard; nothing is shared between sessions.
type Guard struct {
	mu   sync.Mutex
	last *Fingerprint
	ttl  time.Duration
	now  func() time.Time
}

// NewGuard creates a guard with the given TTL (DefaultQuoteTTL when zero).
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	return &Guard{ttl: ttl, now: time.Now}
}

// WithClock replaces the guard's time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	if now != nil {
		g.now = now
	}
	return g
}

// ShouldFetch returns true when r differs from the last fetched request or the
// last fetch is older than the TTL. A true result records r as the last fetch
// before returning, so rapid repeated calls fetch once.
func (g *Guard) ShouldFetch(r SwapRequest, force bool) bool {
	if !r.Fetchable() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fp := NewFingerprint(r, g.now())
	if !force && g.last != nil && g.last.Equivalent(fp) && fp.Timestamp.Sub(g.last.Timestamp) < g.ttl {
		return false
	}

	g.last = &fp
	return true
}

// Last returns the last recorded fingerprint, if any.
func (g *Guard) Last() (Fingerprint, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return Fingerprint{}, false
	}
	return *g.last, true
}

// Reset forgets the last fetch so the next ShouldFetch call returns true.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}
