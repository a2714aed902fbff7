package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/extraction"
	"contract_alert_engine/internal/domain/notify"
	"contract_alert_engine/internal/domain/owner"
	"contract_alert_engine/internal/infra/logger"
	"contract_alert_engine/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

// t0 is midnight so that YYYY-MM-DD candidates land on whole-day offsets.
var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func at(d time.Duration) func() time.Time {
	return func() time.Time { return t0.Add(d) }
}

const day = 24 * time.Hour

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []notify.DateAlert
	to       []notify.Recipient
	failures int // Calls to fail before succeeding; negative fails forever
	delay    time.Duration
	block    bool
	onSend   func(notify.DateAlert) // Runs before a successful send is recorded
}

var errDeliveryFailed = errors.New("smtp 451 try again later")

func (n *recordingNotifier) SendDateAlert(ctx context.Context, to notify.Recipient, alert notify.DateAlert) error {
	if n.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	if n.onSend != nil {
		n.onSend(alert)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures != 0 {
		if n.failures > 0 {
			n.failures--
		}
		return errDeliveryFailed
	}
	n.sent = append(n.sent, alert)
	n.to = append(n.to, to)
	return nil
}

func (n *recordingNotifier) sentIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.sent))
	for _, a := range n.sent {
		ids = append(ids, a.AlertID)
	}
	return ids
}

type stubExtractor struct {
	candidates []extraction.Candidate
	err        error
	calls      int
}

func (e *stubExtractor) ExtractDates(context.Context, string, string) ([]extraction.Candidate, error) {
	e.calls++
	return e.candidates, e.err
}

type fixture struct {
	contracts *memory.ContractRepository
	owners    *memory.OwnerRepository
	owner     *owner.Owner
	notifier  *recordingNotifier
	extractor *stubExtractor
	scheduler *SchedulerService
	dispatch  *DispatchService
	sweep     *SweepService
}

func newFixture(t *testing.T, policy RetryPolicy) *fixture {
	t.Helper()
	log := logger.Discard()
	f := &fixture{
		contracts: memory.NewContractRepository(),
		owners:    memory.NewOwnerRepository(),
		notifier:  &recordingNotifier{},
		extractor: &stubExtractor{},
	}
	f.owner = &owner.Owner{
		Email:      "legal@example.com",
		Name:       "Legal Team",
		TelegramID: sql.NullInt64{Int64: 4242, Valid: true},
		IsActive:   true,
	}
	require.NoError(t, f.owners.Create(context.Background(), f.owner))

	if policy.ClaimTTL == 0 {
		policy.ClaimTTL = 15 * time.Minute
	}
	f.scheduler = NewSchedulerService(f.contracts, NewExtractionBridge(f.extractor, time.Second, log), 0, nil, log)
	f.dispatch = NewDispatchService(f.contracts, f.owners, f.notifier, policy, time.Second, 4, nil, log)
	f.sweep = NewSweepService(f.contracts, nil, log)
	f.setClock(at(0))
	return f
}

func (f *fixture) setClock(now func() time.Time) {
	f.scheduler.SetClock(now)
	f.dispatch.SetClock(now)
	f.sweep.SetClock(now)
}

// newContract stores a contract with the given active dates and no alerts.
func (f *fixture) newContract(t *testing.T, dates map[contract.DateType]time.Time) (*contract.Contract, map[contract.DateType]string) {
	t.Helper()
	c := contract.New(f.owner.ID, "lease", "contract text")
	ids := make(map[contract.DateType]string, len(dates))
	for dt, when := range dates {
		ids[dt] = c.AddDate(dt, when, string(dt)+" description", "clause").ID
	}
	require.NoError(t, f.contracts.CreateContract(context.Background(), c))
	return c, ids
}

func (f *fixture) alert(t *testing.T, contractID, dateID string, offset int) *contract.Alert {
	t.Helper()
	c, err := f.contracts.GetContract(context.Background(), contractID)
	require.NoError(t, err)
	a, ok := c.FindAlert(dateID, offset)
	require.True(t, ok, "no alert for offset %d", offset)
	return a
}

func offsetsOf(c *contract.Contract, dateID string) []int {
	var out []int
	for _, a := range c.AlertsForDate(dateID) {
		out = append(out, a.OffsetDays)
	}
	return out
}
