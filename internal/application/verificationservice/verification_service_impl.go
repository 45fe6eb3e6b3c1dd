package verificationservice

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/application/settlement"
	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/infrastructure/rpc"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/pkg/config"
)

type verificationService struct {
	store      ledgerrepo.ILedgerRepository
	queue      *VerificationQueue
	resolver   *NetworkResolver
	verifiers  map[domain.Network]rpc.IChainVerifier
	settlement settlement.ISettlementPipeline
	events     domain.EventSink
	config     config.VerificationConfig
	logger     zerolog.Logger
}

func New(
	store ledgerrepo.ILedgerRepository,
	queue *VerificationQueue,
	resolver *NetworkResolver,
	verifiers []rpc.IChainVerifier,
	settlementPipeline settlement.ISettlementPipeline,
	events domain.EventSink,
	cfg config.VerificationConfig,
	logger zerolog.Logger,
) IVerificationService {
	byNetwork := make(map[domain.Network]rpc.IChainVerifier, len(verifiers))
	for _, v := range verifiers {
		byNetwork[v.Network()] = v
	}
	return &verificationService{
		store:      store,
		queue:      queue,
		resolver:   resolver,
		verifiers:  byNetwork,
		settlement: settlementPipeline,
		events:     events,
		config:     cfg,
		logger:     logger,
	}
}

func (s *verificationService) Start(ctx context.Context) error {
	if err := s.queue.Rehydrate(ctx, s.store, s.logger); err != nil {
		return err
	}

	s.logger.Info().
		Int("polling_interval_seconds", s.config.PollingInterval).
		Int("max_retries", s.config.MaxRetries).
		Msg("Starting deposit verification service")

	ticker := time.NewTicker(time.Duration(s.config.PollingInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Deposit verification service stopped")
			return ctx.Err()
		case <-ticker.C:
			s.processQueue(ctx)
		}
	}
}

func (s *verificationService) EnqueueForVerification(task domain.VerificationTask) bool {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = task.EnqueuedAt
	}
	added := s.queue.Enqueue(task)
	if added {
		s.logger.Info().
			Str("tx_hash", domain.NormalizeTxHash(task.TxHash)).
			Str("network", string(task.Network)).
			Msg("Deposit enqueued for verification")
	}
	return added
}

func (s *verificationService) QueueDepth() int {
	return s.queue.Depth()
}

func (s *verificationService) TaskStatus(txHash string) (domain.VerificationTask, bool) {
	return s.queue.Get(txHash)
}

// processQueue runs one scheduler tick: a sequential pass over the queue
// with a short delay between tasks to stay inside upstream rate limits.
func (s *verificationService) processQueue(ctx context.Context) {
	tasks := s.queue.Drain()
	for i, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		s.processTask(ctx, task)
		if i < len(tasks)-1 && s.config.TaskDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.TaskDelay):
			}
		}
	}
}

func (s *verificationService) processTask(ctx context.Context, task domain.VerificationTask) {
	if s.expired(task) {
		s.escalate(ctx, task, "verification window expired")
		return
	}

	verdict, network, err := s.verifyWithFallback(ctx, task)
	if err != nil {
		// Unexpected fault (malformed gateway response). The task stays
		// queued and is retried on the next tick without consuming a retry.
		s.logger.Error().
			Str("tx_hash", task.TxHash).
			Err(err).
			Msg("Verification attempt failed unexpectedly")
		return
	}

	if network != task.Network {
		s.correctNetwork(ctx, task, network)
		task.Network = network
	}

	switch {
	case verdict.Valid:
		if err := s.settlement.Settle(ctx, task, verdict); err != nil {
			// The chain-side truth is known good; only the write failed.
			// Keep the task queued and retry without counting it against
			// the retry ceiling.
			s.logger.Error().
				Str("tx_hash", task.TxHash).
				Str("deposit_id", task.DepositID).
				Err(err).
				Msg("Settlement did not commit, will retry")
			return
		}
		s.queue.Remove(task.TxHash)

	case verdict.Error.Retryable():
		retries := s.queue.IncrementRetry(task.TxHash)
		s.logger.Debug().
			Str("tx_hash", task.TxHash).
			Str("error", string(verdict.Error)).
			Str("detail", verdict.Detail).
			Int("retry_count", retries).
			Msg("Retryable verification outcome")
		if retries >= s.config.MaxRetries {
			s.escalate(ctx, task, "max attempts reached: "+verdict.Error.Reason())
		}

	default:
		s.escalate(ctx, task, verdict.Error.Reason())
	}
}

// verifyWithFallback verifies against the resolver's first candidate and,
// only when the transaction is not found there, immediately tries the next
// candidate network within the same tick.
func (s *verificationService) verifyWithFallback(ctx context.Context, task domain.VerificationTask) (domain.Verdict, domain.Network, error) {
	candidates := s.resolver.Resolve(task.TxHash, task.Network)

	verdict, err := s.verifyOn(ctx, candidates[0], task.TxHash)
	if err != nil {
		return domain.Verdict{}, task.Network, err
	}
	if verdict.Valid || verdict.Error != domain.VerifyErrNotFound || len(candidates) < 2 {
		return verdict, candidates[0], nil
	}

	fallback, err := s.verifyOn(ctx, candidates[1], task.TxHash)
	if err != nil {
		return domain.Verdict{}, task.Network, err
	}
	if fallback.Valid || fallback.Error != domain.VerifyErrNotFound {
		return fallback, candidates[1], nil
	}
	// Unknown everywhere; report against the first candidate.
	return verdict, candidates[0], nil
}

func (s *verificationService) verifyOn(ctx context.Context, network domain.Network, txHash string) (domain.Verdict, error) {
	verifier, ok := s.verifiers[network]
	if !ok {
		return domain.Verdict{Error: domain.VerifyErrNotFound, Detail: "no verifier for network"}, nil
	}
	return verifier.Verify(ctx, txHash)
}

// correctNetwork persists a network correction so future ticks (and future
// restarts) skip the wrong chain. Only possible while the deposit is pending.
func (s *verificationService) correctNetwork(ctx context.Context, task domain.VerificationTask, network domain.Network) {
	s.logger.Info().
		Str("tx_hash", task.TxHash).
		Str("claimed_network", string(task.Network)).
		Str("resolved_network", string(network)).
		Msg("Correcting deposit network")

	if err := s.store.UpdateDepositNetwork(ctx, task.DepositID, network); err != nil {
		s.logger.Error().
			Str("deposit_id", task.DepositID).
			Err(err).
			Msg("Failed to persist network correction")
	}
	s.queue.SetNetwork(task.TxHash, network)
}

func (s *verificationService) escalate(ctx context.Context, task domain.VerificationTask, reason string) {
	if err := s.store.MarkDepositManualReview(ctx, task.DepositID, reason); err != nil {
		// Leave the task queued; escalation is retried next tick.
		s.logger.Error().
			Str("deposit_id", task.DepositID).
			Err(err).
			Msg("Failed to escalate deposit to manual review")
		return
	}
	s.queue.Remove(task.TxHash)

	s.logger.Warn().
		Str("deposit_id", task.DepositID).
		Str("tx_hash", task.TxHash).
		Str("reason", reason).
		Msg("Deposit escalated to manual review")

	s.events.Publish(domain.Event{
		Type: domain.EventDepositUpdated,
		Deposit: &domain.Deposit{
			ID:           task.DepositID,
			UserID:       task.UserID,
			TxHash:       task.TxHash,
			Network:      task.Network,
			Amount:       task.Amount,
			Status:       domain.DepositStatusManualReview,
			ReviewReason: reason,
		},
	})
}

func (s *verificationService) expired(task domain.VerificationTask) bool {
	if s.config.DepositTimeoutHours <= 0 || task.CreatedAt.IsZero() {
		return false
	}
	return time.Since(task.CreatedAt) > time.Duration(s.config.DepositTimeoutHours)*time.Hour
}
