package withdrawals

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/disbursement"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []disbursement.Request
	err   error
}

func (g *fakeGateway) Disburse(ctx context.Context, req disbursement.Request) (*disbursement.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &disbursement.Response{GatewayID: "gw_" + req.ExternalRef, Status: "PENDING"}, nil
}

func (g *fakeGateway) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	guard   *wallet.Guard
	wallets wallet.Service
	clock   *clock
}

var testConfig = config.WithdrawalConfig{
	MinAmountMinor: 10000,
	StuckAfter:     24 * time.Hour,
	RetryAfter:     2 * time.Minute,
	RetryBatchSize: 10,
}

func newHarness(t *testing.T, wrapRepo ...func(Repository) Repository) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	walletRepo := wallet.NewRepository(conn)
	guard, err := wallet.NewGuard(wallet.GuardParams{DB: conn, Wallets: walletRepo, Entries: ledger.NewRepository(conn), Metrics: ledgerMetrics})
	require.NoError(t, err)
	wallets, err := wallet.NewService(wallet.ServiceParams{DB: conn, Repo: walletRepo, Guard: guard, Outbox: emitter, Metrics: ledgerMetrics})
	require.NoError(t, err)

	repo := NewRepository(conn)
	for _, wrap := range wrapRepo {
		repo = wrap(repo)
	}
	gateway := &fakeGateway{}
	clk := &clock{now: time.Now().UTC()}
	svc, err := NewService(ServiceParams{
		DB:      conn,
		Repo:    repo,
		Wallets: wallets,
		Guard:   guard,
		Gateway: gateway,
		Outbox:  emitter,
		Config:  testConfig,
		Metrics: ledgerMetrics,
		Now:     clk.Now,
	})
	require.NoError(t, err)
	return &harness{db: conn, svc: svc, gateway: gateway, guard: guard, wallets: wallets, clock: clk}
}

func (h *harness) fundedWallet(t *testing.T, amount int64) *models.Wallet {
	t.Helper()
	w, err := h.wallets.Open(context.Background(), uuid.New(), enums.WalletOwnerUser, enums.CurrencyIDR)
	require.NoError(t, err)
	_, err = h.guard.TryAdjustBalance(context.Background(), wallet.AdjustInput{
		WalletID:    w.ID,
		DeltaMinor:  amount,
		Category:    enums.LedgerCategoryTopUp,
		ReferenceID: "topup-" + uuid.NewString(),
		Description: "initial top-up",
	})
	require.NoError(t, err)
	return w
}

func (h *harness) balance(t *testing.T, walletID uuid.UUID) int64 {
	t.Helper()
	view, err := h.wallets.Balance(context.Background(), walletID)
	require.NoError(t, err)
	return view.BalanceMinor
}

func (h *harness) entries(t *testing.T, walletID uuid.UUID, category enums.LedgerCategory) []models.LedgerEntry {
	t.Helper()
	var rows []models.LedgerEntry
	require.NoError(t, h.db.Where("wallet_id = ? AND category = ?", walletID, category).Order("seq").Find(&rows).Error)
	return rows
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

// flakyDispatchRepo fails the first RecordDispatchAttempt calls.
type flakyDispatchRepo struct {
	Repository
	mu       sync.Mutex
	failures int
}

func (r *flakyDispatchRepo) WithTx(tx *gorm.DB) Repository {
	return &flakyDispatchRepo{Repository: r.Repository.WithTx(tx)}
}

func (r *flakyDispatchRepo) RecordDispatchAttempt(ctx context.Context, id uuid.UUID, dispatchErr *string) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.Repository.RecordDispatchAttempt(ctx, id, dispatchErr)
}

func destination() models.Destination {
	return models.Destination{BankCode: "bca", AccountNumber: "1234567890", AccountName: "Budi Santoso"}
}

func TestCreateConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Create(context.Background(), CreateInput{WalletID: w.ID, AmountMinor: 80000, Destination: destination()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(20000), h.balance(t, w.ID))
	assert.Equal(t, int64(1), h.count(t, &models.Withdrawal{}, "wallet_id = ?", w.ID))
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryWithdrawal), 1)
}

func TestCreateDispatchesReservedWithdrawal(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)

	res, err := h.svc.Create(context.Background(), CreateInput{WalletID: w.ID, AmountMinor: 50000, Destination: destination()})
	require.NoError(t, err)
	assert.True(t, res.Dispatched)
	assert.Equal(t, enums.WithdrawalStatusDispatched, res.Withdrawal.Status)
	assert.Equal(t, 1, res.Withdrawal.DispatchAttempts)
	require.NotNil(t, res.Withdrawal.DispatchedAt)
	assert.Equal(t, "BCA", res.Withdrawal.Destination.BankCode)

	require.Equal(t, 1, h.gateway.callCount())
	assert.Equal(t, res.Withdrawal.ExternalRef, h.gateway.calls[0].ExternalRef)
	assert.Equal(t, "IDR", h.gateway.calls[0].Currency)
	assert.Equal(t, int64(50000), h.balance(t, w.ID))

	debits := h.entries(t, w.ID, enums.LedgerCategoryWithdrawal)
	require.Len(t, debits, 1)
	assert.Equal(t, int64(-50000), debits[0].AmountMinor)
	assert.Equal(t, res.Withdrawal.ID.String(), debits[0].ReferenceID)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventWithdrawalReserved))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 0, Destination: destination()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	_, err = h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 5000, Destination: destination()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	_, err = h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 20000, Destination: models.Destination{BankCode: "BCA"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 200000, Destination: destination()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	assert.Equal(t, int64(0), h.count(t, &models.Withdrawal{}, "wallet_id = ?", w.ID))
	assert.Equal(t, 0, h.gateway.callCount())
	assert.Equal(t, int64(100000), h.balance(t, w.ID))
}

func TestCreateOnFrozenWalletCreatesNothing(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	_, err := h.wallets.Freeze(context.Background(), w.ID, "manual review")
	require.NoError(t, err)

	_, err = h.svc.Create(context.Background(), CreateInput{WalletID: w.ID, AmountMinor: 50000, Destination: destination()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWalletFrozen))
	assert.Equal(t, int64(0), h.count(t, &models.Withdrawal{}, "wallet_id = ?", w.ID))
}

func TestReconcileFailedRefundsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 50000, Destination: destination()})
	require.NoError(t, err)
	ref := res.Withdrawal.ExternalRef

	result, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: ref, Outcome: "FAILED", Reason: "beneficiary account closed", Payload: json.RawMessage(`{"outcome":"FAILED"}`)})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileProcessed, result)

	replay, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: ref, Outcome: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileDuplicate, replay)

	debits := h.entries(t, w.ID, enums.LedgerCategoryWithdrawal)
	refunds := h.entries(t, w.ID, enums.LedgerCategoryRefund)
	require.Len(t, debits, 1)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(-50000), debits[0].AmountMinor)
	assert.Equal(t, int64(50000), refunds[0].AmountMinor)
	assert.Equal(t, res.Withdrawal.ID.String(), refunds[0].ReferenceID)
	assert.Contains(t, refunds[0].Description, "beneficiary account closed")
	assert.Equal(t, int64(100000), h.balance(t, w.ID))

	view, err := h.svc.Get(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, view.Status)
	assert.Equal(t, FailedUserMessage, view.Message)
	assert.Equal(t, "******7890", view.AccountMask)

	assert.Equal(t, int64(2), h.count(t, &models.WebhookReconciliation{}, "external_ref = ?", ref))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventWithdrawalFailed))
}

func TestReconcileCompletedLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 30000, Destination: destination()})
	require.NoError(t, err)

	result, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: res.Withdrawal.ExternalRef, Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileProcessed, result)

	late, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: res.Withdrawal.ExternalRef, Outcome: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileDuplicate, late)

	view, err := h.svc.Get(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCompleted, view.Status)
	assert.NotNil(t, view.ProcessedAt)
	assert.Empty(t, h.entries(t, w.ID, enums.LedgerCategoryRefund))
	assert.Equal(t, int64(70000), h.balance(t, w.ID))
}

func TestReconcileUnknownAndIgnoredOutcomes(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()

	unknown, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: "wd_doesnotexist", Outcome: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileUnknown, unknown)
	assert.Equal(t, int64(1), h.count(t, &models.WebhookReconciliation{}, "external_ref = ? AND result = ?", "wd_doesnotexist", enums.ReconcileUnknown))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventReconciliationUnknown))

	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 30000, Destination: destination()})
	require.NoError(t, err)
	ignored, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: res.Withdrawal.ExternalRef, Outcome: "PROCESSING"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileIgnored, ignored)

	view, err := h.svc.Get(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusDispatched, view.Status)

	_, err = h.svc.Reconcile(ctx, ReconcileInput{Outcome: "FAILED"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGatewayUnavailableKeepsReservedUntilRetry(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	h.gateway.fail(pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway timeout"))

	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 40000, Destination: destination()})
	require.NoError(t, err)
	assert.False(t, res.Dispatched)
	assert.Equal(t, enums.WithdrawalStatusReserved, res.Withdrawal.Status)
	assert.Equal(t, 1, res.Withdrawal.DispatchAttempts)
	require.NotNil(t, res.Withdrawal.LastDispatchError)
	assert.Equal(t, int64(60000), h.balance(t, w.ID))

	summary, err := h.svc.RetryDispatch(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Attempted)

	h.gateway.fail(nil)
	h.clock.Advance(time.Hour)
	summary, err = h.svc.RetryDispatch(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Attempted: 1, Dispatched: 1}, summary)

	view, err := h.svc.Get(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusDispatched, view.Status)
	assert.Equal(t, 2, h.gateway.callCount())
	assert.Equal(t, h.gateway.calls[0].ExternalRef, h.gateway.calls[1].ExternalRef)
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryWithdrawal), 1)
	assert.Equal(t, int64(60000), h.balance(t, w.ID))
}

func TestSynchronousRejectionRefunds(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	h.gateway.fail(&disbursement.RejectionError{StatusCode: 422, Reason: "invalid bank code"})

	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 25000, Destination: destination()})
	require.NoError(t, err)
	assert.False(t, res.Dispatched)
	assert.Equal(t, enums.WithdrawalStatusFailed, res.Withdrawal.Status)
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryRefund), 1)
	assert.Equal(t, int64(100000), h.balance(t, w.ID))

	replay, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: res.Withdrawal.ExternalRef, Outcome: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileDuplicate, replay)
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryRefund), 1)

	view, err := h.svc.Get(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, FailedUserMessage, view.Message)
	assert.NotContains(t, view.Message, "invalid bank code")
}

func TestRefundOnFrozenWalletIsQueued(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 50000, Destination: destination()})
	require.NoError(t, err)
	_, err = h.wallets.Freeze(ctx, w.ID, "drift investigation")
	require.NoError(t, err)

	result, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: res.Withdrawal.ExternalRef, Outcome: "FAILED"})
	require.NoError(t, err)
	assert.Equal(t, enums.ReconcileProcessed, result)
	assert.Empty(t, h.entries(t, w.ID, enums.LedgerCategoryRefund))
	assert.Equal(t, int64(50000), h.balance(t, w.ID))

	unfrozen, err := h.wallets.Unfreeze(ctx, w.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, unfrozen.ReplayedCredits)
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryRefund), 1)
	assert.Equal(t, int64(100000), h.balance(t, w.ID))
}

func TestListStuckReportsOnlyOldDispatched(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 200000)
	ctx := context.Background()

	old, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 20000, Destination: destination()})
	require.NoError(t, err)
	h.clock.Advance(23 * time.Hour)
	_, err = h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 20000, Destination: destination()})
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	stuck, err := h.svc.ListStuck(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, old.Withdrawal.ID, stuck[0].ID)
	assert.Equal(t, "25h0m0s", stuck[0].Age)

	view, err := h.svc.Get(ctx, old.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusDispatched, view.Status)
}

func TestGetUnknownWithdrawal(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateKeepsReservationWhenDispatchBookkeepingFails(t *testing.T) {
	flaky := &flakyDispatchRepo{failures: 1}
	h := newHarness(t, func(repo Repository) Repository {
		flaky.Repository = repo
		return flaky
	})
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()

	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 80000, Destination: destination()})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Dispatched)
	assert.Equal(t, enums.WithdrawalStatusReserved, res.Withdrawal.Status)
	assert.Equal(t, int64(20000), h.balance(t, w.ID))
	assert.Equal(t, int64(1), h.count(t, &models.Withdrawal{}, "wallet_id = ?", w.ID))

	h.clock.Advance(10 * time.Minute)
	summary, err := h.svc.RetryDispatch(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Equal(t, 2, h.gateway.callCount())
	assert.Equal(t, res.Withdrawal.ExternalRef, h.gateway.calls[1].ExternalRef)
	assert.Len(t, h.entries(t, w.ID, enums.LedgerCategoryWithdrawal), 1)
	assert.Equal(t, int64(20000), h.balance(t, w.ID))
}

func TestAuditListsEveryCallbackForWithdrawal(t *testing.T) {
	h := newHarness(t)
	w := h.fundedWallet(t, 100000)
	ctx := context.Background()
	res, err := h.svc.Create(ctx, CreateInput{WalletID: w.ID, AmountMinor: 30000, Destination: destination()})
	require.NoError(t, err)
	ref := res.Withdrawal.ExternalRef

	for _, outcome := range []string{"PROCESSING", "FAILED", "FAILED"} {
		_, err := h.svc.Reconcile(ctx, ReconcileInput{ExternalRef: ref, Outcome: outcome})
		require.NoError(t, err)
	}

	audit, err := h.svc.Audit(ctx, res.Withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, audit.Withdrawal.Status)
	require.Len(t, audit.Reconciliations, 3)
	results := []enums.ReconcileResult{}
	for _, attempt := range audit.Reconciliations {
		results = append(results, attempt.Result)
	}
	assert.ElementsMatch(t, []enums.ReconcileResult{enums.ReconcileIgnored, enums.ReconcileProcessed, enums.ReconcileDuplicate}, results)

	_, err = h.svc.Audit(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
