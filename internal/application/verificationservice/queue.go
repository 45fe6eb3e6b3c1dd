package verificationservice

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
)

// VerificationQueue is the in-process registry of deposits awaiting
// confirmation, keyed by normalized tx hash. It is the dedup point that
// keeps a deposit from being verified twice concurrently.
type VerificationQueue struct {
	mu    sync.Mutex
	tasks map[string]*domain.VerificationTask
}

func NewQueue() *VerificationQueue {
	return &VerificationQueue{
		tasks: make(map[string]*domain.VerificationTask),
	}
}

// Enqueue registers a task unless one already exists for the same hash.
// Returns false for duplicates.
func (q *VerificationQueue) Enqueue(task domain.VerificationTask) bool {
	task.TxHash = domain.NormalizeTxHash(task.TxHash)

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.tasks[task.TxHash]; exists {
		return false
	}
	q.tasks[task.TxHash] = &task
	return true
}

// Drain returns a snapshot of every queued task ordered by enqueue time,
// hash as tiebreaker, so processing order is deterministic within a tick.
func (q *VerificationQueue) Drain() []domain.VerificationTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]domain.VerificationTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].EnqueuedAt.Equal(tasks[j].EnqueuedAt) {
			return tasks[i].EnqueuedAt.Before(tasks[j].EnqueuedAt)
		}
		return tasks[i].TxHash < tasks[j].TxHash
	})
	return tasks
}

func (q *VerificationQueue) Remove(txHash string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, domain.NormalizeTxHash(txHash))
}

func (q *VerificationQueue) Get(txHash string) (domain.VerificationTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[domain.NormalizeTxHash(txHash)]
	if !ok {
		return domain.VerificationTask{}, false
	}
	return *t, true
}

func (q *VerificationQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// IncrementRetry bumps the retry counter for a task still in the queue and
// returns the new count. Tasks removed between drain and outcome are left
// alone and report zero.
func (q *VerificationQueue) IncrementRetry(txHash string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[domain.NormalizeTxHash(txHash)]
	if !ok {
		return 0
	}
	t.RetryCount++
	return t.RetryCount
}

// SetNetwork records a network correction discovered during verification so
// later ticks go straight to the proven chain.
func (q *VerificationQueue) SetNetwork(txHash string, network domain.Network) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[domain.NormalizeTxHash(txHash)]; ok {
		t.Network = network
	}
}

// Rehydrate reloads every pending deposit with tx info from the store.
// Called once at startup so in-flight verifications survive restarts.
func (q *VerificationQueue) Rehydrate(ctx context.Context, store ledgerrepo.ILedgerRepository, logger zerolog.Logger) error {
	deposits, err := store.FindPendingDepositsWithTxInfo(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, d := range deposits {
		if q.Enqueue(domain.TaskFromDeposit(d)) {
			enqueued++
		}
	}
	logger.Info().
		Int("pending_deposits", len(deposits)).
		Int("enqueued", enqueued).
		Msg("Verification queue rehydrated")
	return nil
}
