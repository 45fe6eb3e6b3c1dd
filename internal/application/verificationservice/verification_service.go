package verificationservice

import (
	"context"

	"github.com/nexbit/dvs/internal/domain"
)

type IVerificationService interface {
	// Start rehydrates the queue from the store and runs the polling loop
	// until ctx is cancelled.
	Start(ctx context.Context) error

	// EnqueueForVerification hands a newly submitted deposit claim to the
	// engine. Returns false when the hash is already being verified.
	EnqueueForVerification(task domain.VerificationTask) bool

	QueueDepth() int
	TaskStatus(txHash string) (domain.VerificationTask, bool)
}
