package settlement

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/pkg/config"
)

// fakeLedgerTx is an in-memory stand-in for one atomic settlement unit.
type fakeLedgerTx struct {
	deposits       map[string]domain.Deposit
	balances       map[string]decimal.Decimal
	referrers      map[string]string
	approvedCounts map[string]int
	entries        []domain.LedgerEntry
	approveCalls   int
	balanceErr     error
}

func newFakeTx() *fakeLedgerTx {
	return &fakeLedgerTx{
		deposits:       make(map[string]domain.Deposit),
		balances:       make(map[string]decimal.Decimal),
		referrers:      make(map[string]string),
		approvedCounts: make(map[string]int),
	}
}

func (tx *fakeLedgerTx) GetDepositForUpdate(_ context.Context, depositID string) (domain.Deposit, error) {
	d, ok := tx.deposits[depositID]
	if !ok {
		return domain.Deposit{}, ledgerrepo.ErrNotFound
	}
	return d, nil
}

func (tx *fakeLedgerTx) MarkDepositApproved(_ context.Context, deposit domain.Deposit) error {
	tx.approveCalls++
	deposit.Status = domain.DepositStatusApproved
	tx.deposits[deposit.ID] = deposit
	return nil
}

func (tx *fakeLedgerTx) GetBalanceForUpdate(_ context.Context, userID string) (decimal.Decimal, error) {
	if tx.balanceErr != nil {
		return decimal.Zero, tx.balanceErr
	}
	return tx.balances[userID], nil
}

func (tx *fakeLedgerTx) SetUserBalance(_ context.Context, userID string, amount decimal.Decimal) error {
	tx.balances[userID] = amount
	return nil
}

func (tx *fakeLedgerTx) AppendLedgerEntry(_ context.Context, entry domain.LedgerEntry) error {
	tx.entries = append(tx.entries, entry)
	return nil
}

func (tx *fakeLedgerTx) GetReferrerID(_ context.Context, userID string) (string, error) {
	return tx.referrers[userID], nil
}

func (tx *fakeLedgerTx) CountApprovedDeposits(_ context.Context, userID, _ string) (int, error) {
	return tx.approvedCounts[userID], nil
}

// fakeAtomicStore runs the settlement unit against the fake transaction.
type fakeAtomicStore struct {
	tx *fakeLedgerTx
}

func (s *fakeAtomicStore) RunAtomic(_ context.Context, fn func(tx ledgerrepo.ILedgerTx) error) error {
	return fn(s.tx)
}

func (s *fakeAtomicStore) FindPendingDepositsWithTxInfo(context.Context) ([]domain.Deposit, error) {
	return nil, nil
}

func (s *fakeAtomicStore) GetDepositByTxHash(context.Context, string) (domain.Deposit, error) {
	return domain.Deposit{}, ledgerrepo.ErrNotFound
}

func (s *fakeAtomicStore) UpdateDepositNetwork(context.Context, string, domain.Network) error {
	return nil
}

func (s *fakeAtomicStore) MarkDepositManualReview(context.Context, string, string) error {
	return nil
}

func (s *fakeAtomicStore) GetUserBalance(context.Context, string) (domain.Balance, error) {
	return domain.Balance{}, ledgerrepo.ErrNotFound
}

func (s *fakeAtomicStore) Ping(context.Context) error { return nil }

type eventRecorder struct {
	events []domain.Event
}

func (r *eventRecorder) Publish(event domain.Event) {
	r.events = append(r.events, event)
}

var referralCfg = config.ReferralConfig{FirstDepositBonus: "5", CommissionPercent: "2.5"}

func pendingDeposit(id, userID string, claimed decimal.Decimal) domain.Deposit {
	return domain.Deposit{
		ID:      id,
		UserID:  userID,
		TxHash:  "7c2d8a5f3b1e9c4d6a8f0b2e5c7d9a1f3b5e7c9d1a3f5b7e9c1d3a5f7b9e1c3d",
		Network: domain.NetworkTron,
		Amount:  claimed,
		Status:  domain.DepositStatusPending,
	}
}

func TestSettleCreditsVerdictAmount(t *testing.T) {
	tx := newFakeTx()
	tx.deposits["d1"] = pendingDeposit("d1", "u1", decimal.NewFromInt(150))
	tx.balances["u1"] = decimal.NewFromInt(10)
	events := &eventRecorder{}

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, events, zerolog.Nop())
	verdict := domain.Verdict{
		Valid:       true,
		Amount:      decimal.RequireFromString("150.5"),
		From:        "TSenderAddress",
		BlockNumber: 4200,
	}

	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(tx.deposits["d1"]), verdict)
	require.NoError(t, err)

	deposit := tx.deposits["d1"]
	assert.Equal(t, domain.DepositStatusApproved, deposit.Status)
	assert.True(t, deposit.Amount.Equal(decimal.RequireFromString("150.5")),
		"the on-chain amount overrides the claim")
	assert.Equal(t, "TSenderAddress", deposit.FromAddress)
	assert.Equal(t, int64(4200), deposit.BlockNumber)

	assert.True(t, tx.balances["u1"].Equal(decimal.RequireFromString("160.5")))

	require.Len(t, tx.entries, 1)
	entry := tx.entries[0]
	assert.Equal(t, domain.LedgerEntryDepositCredit, entry.Type)
	assert.True(t, entry.BalanceBefore.Equal(decimal.NewFromInt(10)))
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("160.5")))
	assert.Equal(t, "d1", entry.ReferenceID)

	require.Len(t, events.events, 2)
	assert.Equal(t, domain.EventDepositUpdated, events.events[0].Type)
	assert.Equal(t, domain.EventBalanceUpdated, events.events[1].Type)
	assert.True(t, events.events[1].Balance.Amount.Equal(decimal.RequireFromString("160.5")))
}

func TestSettleNonPendingDepositIsNoOp(t *testing.T) {
	tx := newFakeTx()
	deposit := pendingDeposit("d1", "u1", decimal.NewFromInt(100))
	deposit.Status = domain.DepositStatusApproved
	tx.deposits["d1"] = deposit
	tx.balances["u1"] = decimal.NewFromInt(10)
	events := &eventRecorder{}

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, events, zerolog.Nop())
	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(deposit),
		domain.Verdict{Valid: true, Amount: decimal.NewFromInt(100)})

	require.NoError(t, err)
	assert.Equal(t, 0, tx.approveCalls)
	assert.True(t, tx.balances["u1"].Equal(decimal.NewFromInt(10)), "balance untouched")
	assert.Empty(t, tx.entries)
	assert.Empty(t, events.events, "a skipped settlement publishes nothing")
}

func TestSettleFirstDepositPaysReferralBonus(t *testing.T) {
	tx := newFakeTx()
	tx.deposits["d1"] = pendingDeposit("d1", "u1", decimal.NewFromInt(200))
	tx.referrers["u1"] = "ref1"
	tx.balances["ref1"] = decimal.NewFromInt(1)

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, domain.NopEventSink{}, zerolog.Nop())
	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(tx.deposits["d1"]),
		domain.Verdict{Valid: true, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	require.Len(t, tx.entries, 2)
	reward := tx.entries[1]
	assert.Equal(t, domain.LedgerEntryReferralReward, reward.Type)
	assert.Equal(t, "ref1", reward.UserID)
	assert.True(t, reward.Amount.Equal(decimal.NewFromInt(10)), "5 bonus + 2.5%% of 200")
	assert.Equal(t, "d1", reward.ReferenceID)
	assert.True(t, tx.balances["ref1"].Equal(decimal.NewFromInt(11)))
}

func TestSettleSubsequentDepositPaysCommissionOnly(t *testing.T) {
	tx := newFakeTx()
	tx.deposits["d1"] = pendingDeposit("d1", "u1", decimal.NewFromInt(200))
	tx.referrers["u1"] = "ref1"
	tx.approvedCounts["u1"] = 3

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, domain.NopEventSink{}, zerolog.Nop())
	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(tx.deposits["d1"]),
		domain.Verdict{Valid: true, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	require.Len(t, tx.entries, 2)
	assert.True(t, tx.entries[1].Amount.Equal(decimal.NewFromInt(5)))
}

func TestSettleWithoutReferrerSkipsReward(t *testing.T) {
	tx := newFakeTx()
	tx.deposits["d1"] = pendingDeposit("d1", "u1", decimal.NewFromInt(200))

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, domain.NopEventSink{}, zerolog.Nop())
	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(tx.deposits["d1"]),
		domain.Verdict{Valid: true, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	require.Len(t, tx.entries, 1)
	assert.Equal(t, domain.LedgerEntryDepositCredit, tx.entries[0].Type)
}

func TestSettleErrorPublishesNothing(t *testing.T) {
	tx := newFakeTx()
	tx.deposits["d1"] = pendingDeposit("d1", "u1", decimal.NewFromInt(100))
	tx.balanceErr = assert.AnError
	events := &eventRecorder{}

	pipeline := New(&fakeAtomicStore{tx: tx}, referralCfg, events, zerolog.Nop())
	err := pipeline.Settle(context.Background(), domain.TaskFromDeposit(tx.deposits["d1"]),
		domain.Verdict{Valid: true, Amount: decimal.NewFromInt(100)})

	assert.Error(t, err)
	assert.Empty(t, events.events)
	assert.Empty(t, tx.entries)
}
