// Package budget implements the process-wide cost ledger the External Model
// Invoker reserves against before every outbound call and reconciles after.
package budget

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrBudgetExceeded is returned by Reserve when granting the requested
// estimate would push spend past the daily cap.
var ErrBudgetExceeded = errors.New("budget: daily cap exceeded")

// ErrTicketFinalized is returned by Record or Release when called on a
// ticket whose reservation has already been recorded or released. The
// invoker contract requires exactly one of the two per ticket.
var ErrTicketFinalized = errors.New("budget: ticket already recorded or released")

// Ticket is the receipt Reserve returns. Exactly one of Record or Release
// must be called on it, exactly once.
type Ticket struct {
	id        string
	model     string
	estimate  float64
	finalized bool
}

// Snapshot is a point-in-time read of the ledger, safe to hand out after the
// critical section that produced it has ended.
type Snapshot struct {
	Day           string
	Cap           float64
	Spent         float64
	Reserved      float64
	Remaining     float64
	CallsRecorded int
}

// Ledger is a single mutex-guarded process-wide cost tracker. All five
// operations (reserve, record, release, rollover, snapshot) execute inside
// one critical section; rollover runs implicitly at the top of every public
// method so a ledger that sits untouched across a day boundary still resets
// correctly on its next use.
type Ledger struct {
	mu sync.Mutex

	cap           float64
	day           string
	spent         float64
	reserved      float64
	callsRecorded int
	nextTicketID  uint64

	spentGauge    prometheus.Gauge
	remainingGauge prometheus.Gauge
	rejectedTotal prometheus.Counter
}

// New builds a Ledger with the given daily cap (currency units). registry may
// be nil, in which case the ledger runs without Prometheus instrumentation
// (used in tests).
func New(dailyCap float64, registry *prometheus.Registry) *Ledger {
	l := &Ledger{
		cap: dailyCap,
		day: dayStamp(time.Now()),
	}
	if registry != nil {
		l.spentGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resurrection_budget_spent_today",
			Help: "Currency units recorded against today's budget.",
		})
		l.remainingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resurrection_budget_remaining_today",
			Help: "Currency units remaining in today's budget.",
		})
		l.rejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resurrection_budget_rejected_total",
			Help: "Reservation attempts rejected for exceeding the daily cap.",
		})
		registry.MustRegister(l.spentGauge, l.remainingGauge, l.rejectedTotal)
	}
	return l
}

func dayStamp(t time.Time) string { return t.UTC().Format("2006-01-02") }

// rolloverLocked resets spend and call counters when the wall-clock day has
// advanced since the ledger's last observation. Must be called with mu held.
func (l *Ledger) rolloverLocked() {
	today := dayStamp(time.Now())
	if today == l.day {
		return
	}
	l.day = today
	l.spent = 0
	l.reserved = 0
	l.callsRecorded = 0
}

// Reserve grants a provisional hold of estimate against the daily cap. It
// fails fast with ErrBudgetExceeded rather than reserving a partial amount.
func (l *Ledger) Reserve(model string, estimate float64) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	if l.spent+l.reserved+estimate > l.cap {
		if l.rejectedTotal != nil {
			l.rejectedTotal.Inc()
		}
		return nil, ErrBudgetExceeded
	}

	l.reserved += estimate
	l.nextTicketID++
	l.updateGaugesLocked()
	return &Ticket{id: ticketID(l.nextTicketID), model: model, estimate: estimate}, nil
}

func ticketID(n uint64) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append(buf, alphabet[n%uint64(len(alphabet))])
		n /= uint64(len(alphabet))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "tk_" + string(buf)
}

// Record reconciles a successful call: the reservation is released and the
// actual cost is booked instead. actual may be above or below estimate.
func (l *Ledger) Record(t *Ticket, actual float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	if t.finalized {
		return ErrTicketFinalized
	}
	t.finalized = true

	l.reserved -= t.estimate
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.spent += actual
	l.callsRecorded++
	l.updateGaugesLocked()
	return nil
}

// Release returns an unused reservation to the pool, for calls that never
// happened (rejected by the limiter, failed before the model responded, or
// cancelled).
func (l *Ledger) Release(t *Ticket) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	if t.finalized {
		return ErrTicketFinalized
	}
	t.finalized = true

	l.reserved -= t.estimate
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.updateGaugesLocked()
	return nil
}

// SetCap updates the daily cap, e.g. from the budget/cap admin endpoint.
func (l *Ledger) SetCap(cap float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	l.cap = cap
	l.updateGaugesLocked()
}

// Snapshot returns a consistent read of the ledger's current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	remaining := l.cap - l.spent - l.reserved
	return Snapshot{
		Day:           l.day,
		Cap:           l.cap,
		Spent:         l.spent,
		Reserved:      l.reserved,
		Remaining:     remaining,
		CallsRecorded: l.callsRecorded,
	}
}

func (l *Ledger) updateGaugesLocked() {
	if l.spentGauge == nil {
		return
	}
	l.spentGauge.Set(l.spent)
	l.remainingGauge.Set(l.cap - l.spent - l.reserved)
}
