package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
)

type harness struct {
	db         *gorm.DB
	repo       Repository
	entries    ledger.Repository
	guard      *Guard
	service    Service
	reconciler *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	entries := ledger.NewRepository(conn)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.NewRegistry())

	guard, err := NewGuard(GuardParams{DB: conn, Wallets: repo, Entries: entries, Metrics: ledgerMetrics})
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	svc, err := NewService(ServiceParams{DB: conn, Repo: repo, Guard: guard, Outbox: emitter, Metrics: ledgerMetrics})
	require.NoError(t, err)
	reconciler, err := NewReconciler(ReconcilerParams{
		DB: conn, Wallets: repo, Entries: entries, Service: svc, Outbox: emitter, Metrics: ledgerMetrics, BatchSize: 2,
	})
	require.NoError(t, err)

	return &harness{db: conn, repo: repo, entries: entries, guard: guard, service: svc, reconciler: reconciler}
}

func (h *harness) openFunded(t *testing.T, amount int64) *models.Wallet {
	t.Helper()
	wallet, err := h.service.Open(context.Background(), uuid.New(), enums.WalletOwnerUser, enums.CurrencyIDR)
	require.NoError(t, err)
	if amount > 0 {
		_, err = h.guard.TryAdjustBalance(context.Background(), AdjustInput{
			WalletID:    wallet.ID,
			DeltaMinor:  amount,
			Category:    enums.LedgerCategoryTopUp,
			ReferenceID: "topup-" + uuid.NewString(),
			Description: "initial top-up",
		})
		require.NoError(t, err)
	}
	return wallet
}

func (h *harness) outboxEvents(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.db.Where("event_type = ?", eventType).Find(&rows).Error)
	return rows
}

func debit(walletID uuid.UUID, amount int64) AdjustInput {
	return AdjustInput{
		WalletID:    walletID,
		DeltaMinor:  -amount,
		Category:    enums.LedgerCategoryServiceFee,
		ReferenceID: "order-" + uuid.NewString(),
		Description: "service fee",
	}
}

func TestGuardConcurrentDebitsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 1000)

	const attempts = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.guard.TryAdjustBalance(context.Background(), debit(wallet.ID, 100))
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

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, insufficient)

	reloaded, err := h.service.Get(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.BalanceMinor)

	summary, err := h.entries.SumByWallet(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Sum)
	assert.Equal(t, int64(11), summary.Count)
	assert.Equal(t, reloaded.LedgerSeq, summary.MaxSeq)
}

func TestGuardRejectsZeroAndUnknownWallet(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 0)

	_, err := h.guard.TryAdjustBalance(context.Background(), AdjustInput{
		WalletID: wallet.ID, Category: enums.LedgerCategoryTopUp, ReferenceID: "r",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	_, err = h.guard.TryAdjustBalance(context.Background(), debit(uuid.New(), 10))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGuardInsufficientFundsWritesNothing(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 500)

	_, err := h.guard.TryAdjustBalance(context.Background(), debit(wallet.ID, 501))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	summary, err := h.entries.SumByWallet(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
	assert.Equal(t, int64(500), summary.Sum)
}

func TestGuardDedupeKeyAppliesOnce(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 0)

	input := AdjustInput{
		WalletID:    wallet.ID,
		DeltaMinor:  700,
		Category:    enums.LedgerCategoryRefund,
		ReferenceID: "wd-1",
		Description: "refund",
		DedupeKey:   "refund:wd-1",
	}
	first, err := h.guard.TryAdjustBalance(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(700), first.NewBalance)
	assert.Equal(t, enums.LedgerEntryCredit, first.Entry.Kind)

	_, err = h.guard.TryAdjustBalance(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))

	reloaded, err := h.service.Get(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), reloaded.BalanceMinor)
	assert.Equal(t, int64(1), reloaded.LedgerSeq)
}

// staleDedupeEntries misses every dedupe lookup, as if a competing writer
// committed the same key after the check ran.
type staleDedupeEntries struct {
	ledger.Repository
}

func (s staleDedupeEntries) WithTx(tx *gorm.DB) ledger.Repository {
	return staleDedupeEntries{Repository: s.Repository.WithTx(tx)}
}

func (staleDedupeEntries) FindByDedupeKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return nil, nil
}

func TestGuardDedupeCollisionOnAppendRollsBack(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 0)

	input := AdjustInput{
		WalletID:    wallet.ID,
		DeltaMinor:  700,
		Category:    enums.LedgerCategoryRefund,
		ReferenceID: "wd-2",
		Description: "refund",
		DedupeKey:   "refund:wd-2",
	}
	_, err := h.guard.TryAdjustBalance(context.Background(), input)
	require.NoError(t, err)

	racing, err := NewGuard(GuardParams{
		DB:      h.db,
		Wallets: h.repo,
		Entries: staleDedupeEntries{Repository: h.entries},
		Metrics: metrics.NewLedgerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	_, err = racing.TryAdjustBalance(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))

	reloaded, err := h.service.Get(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), reloaded.BalanceMinor)
	assert.Equal(t, int64(1), reloaded.LedgerSeq)

	summary, err := h.entries.SumByWallet(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Count)
}

func TestGuardTxRollsBackWithCaller(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 1000)

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if _, err := h.guard.TryAdjustBalanceTx(context.Background(), tx, debit(wallet.ID, 400)); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "caller failed")
	})
	require.Error(t, err)

	reloaded, err := h.service.Get(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), reloaded.BalanceMinor)
}

func TestFrozenWalletRejectsDebitsAndQueuesCredits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wallet := h.openFunded(t, 1000)

	_, err := h.service.Freeze(ctx, wallet.ID, "manual review")
	require.NoError(t, err)

	_, err = h.guard.TryAdjustBalance(ctx, debit(wallet.ID, 10))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWalletFrozen))

	result, err := h.guard.TryAdjustBalance(ctx, AdjustInput{
		WalletID:    wallet.ID,
		DeltaMinor:  250,
		Category:    enums.LedgerCategoryCommission,
		ReferenceID: "ride-9",
		Description: "courier commission",
	})
	require.Error(t, err)
	assert.True(t, IsQueuedCredit(result, err))

	view, err := h.service.Balance(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), view.BalanceMinor)
	assert.Equal(t, int64(250), view.PendingMinor)
	assert.Equal(t, enums.WalletStatusFrozen, view.Status)

	unfrozen, err := h.service.Unfreeze(ctx, wallet.ID, &outbox.ActorRef{ID: "admin-1", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, unfrozen.ReplayedCredits)
	assert.Equal(t, int64(1250), unfrozen.Wallet.BalanceMinor)
	assert.Equal(t, enums.WalletStatusActive, unfrozen.Wallet.Status)

	var credit models.PendingCredit
	require.NoError(t, h.db.Where("id = ?", result.PendingCredit.ID).First(&credit).Error)
	assert.Equal(t, enums.PendingCreditStatusApplied, credit.Status)
	require.NotNil(t, credit.AppliedEntryID)

	_, err = h.service.Unfreeze(ctx, wallet.ID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Len(t, h.outboxEvents(t, enums.EventWalletUnfrozen), 1)
}

func TestFreezeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wallet := h.openFunded(t, 0)

	first, err := h.service.Freeze(ctx, wallet.ID, "chargeback")
	require.NoError(t, err)
	second, err := h.service.Freeze(ctx, wallet.ID, "again")
	require.NoError(t, err)

	assert.Equal(t, enums.WalletStatusFrozen, second.Status)
	require.NotNil(t, second.FrozenReason)
	assert.Equal(t, *first.FrozenReason, *second.FrozenReason)
	assert.Len(t, h.outboxEvents(t, enums.EventWalletFrozen), 1)

	_, err = h.service.Freeze(ctx, uuid.New(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestOpenIsIdempotentPerOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := uuid.New()

	first, err := h.service.Open(ctx, owner, enums.WalletOwnerUser, "")
	require.NoError(t, err)
	second, err := h.service.Open(ctx, owner, enums.WalletOwnerUser, enums.CurrencyIDR)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.WalletStatusActive, first.Status)

	_, err = h.service.Open(ctx, owner, enums.WalletOwnerType("robot"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReconcilerMatchesConsistentWallet(t *testing.T) {
	h := newHarness(t)
	wallet := h.openFunded(t, 900)
	_, err := h.guard.TryAdjustBalance(context.Background(), debit(wallet.ID, 300))
	require.NoError(t, err)

	result, err := h.reconciler.Check(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.False(t, result.Drift)
	assert.Equal(t, int64(600), result.DerivedMinor)
	assert.Equal(t, int64(2), result.DerivedMaxSeq)
}

func TestReconcilerFreezesDriftedWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	healthy := h.openFunded(t, 100)
	tampered := h.openFunded(t, 100)
	h.openFunded(t, 0)

	require.NoError(t, h.db.Exec("UPDATE wallets SET balance_minor = 5000 WHERE id = ?", tampered.ID).Error)

	summary, err := h.reconciler.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Drifted)
	assert.Equal(t, 1, summary.Frozen)

	frozen, err := h.service.Get(ctx, tampered.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WalletStatusFrozen, frozen.Status)

	ok, err := h.service.Get(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WalletStatusActive, ok.Status)

	assert.Len(t, h.outboxEvents(t, enums.EventWalletDriftDetected), 1)
	assert.Len(t, h.outboxEvents(t, enums.EventWalletFrozen), 1)

	again, err := h.reconciler.Check(ctx, tampered.ID)
	require.NoError(t, err)
	assert.True(t, again.Drift)
	assert.False(t, again.FrozeNow)
	assert.Len(t, h.outboxEvents(t, enums.EventWalletDriftDetected), 1)
}
