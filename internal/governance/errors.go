package governance

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"krampus/internal/classify"
	"krampus/internal/database"
	"krampus/internal/domain"
)

var (
	// ErrAlreadyRuled means the identifier already has an enforced rule;
	// no proposal is created and admins may edit the rule directly.
	ErrAlreadyRuled = errors.New("identifier already has an enforced rule")

	// ErrAlreadyProposed means a live proposal exists; callers should vote
	// on it instead of duplicating. Usually wrapped in AlreadyProposedError
	// carrying the existing proposal.
	ErrAlreadyProposed = errors.New("identifier already has a live proposal")

	ErrProposalNotFound = errors.New("proposal not found")

	// ErrProposalNotVotable rejects votes on non-PENDING proposals.
	ErrProposalNotVotable = errors.New("proposal is not open for voting")

	// ErrInvalidTransition makes every resolver transition a no-op against
	// retries and duplicate deliveries on terminal proposals.
	ErrInvalidTransition = errors.New("proposal is no longer pending")

	ErrInvalidPolicy = errors.New("invalid policy")

	ErrUnauthorized = errors.New("operation requires the admin role")

	// ErrStoreUnavailable surfaces after bounded conflict retries; callers
	// may retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrInvalidIdentifier re-exports the classifier's sentinel so callers can
// handle the whole taxonomy from one package.
var ErrInvalidIdentifier = classify.ErrInvalidIdentifier

// AlreadyProposedError carries the live proposal that blocked a submit, so
// the caller can direct the user to vote on it.
type AlreadyProposedError struct {
	Existing *domain.Proposal
}

func (e *AlreadyProposedError) Error() string {
	return fmt.Sprintf("identifier %q already has a live proposal (id %d, status %s)",
		e.Existing.Identifier, e.Existing.ID, e.Existing.Status)
}

func (e *AlreadyProposedError) Is(target error) bool {
	return target == ErrAlreadyProposed
}

// retryable reports whether an error is a transient store failure worth
// another attempt, as opposed to a final answer from the taxonomy above.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAlreadyRuled),
		errors.Is(err, ErrAlreadyProposed),
		errors.Is(err, ErrProposalNotFound),
		errors.Is(err, ErrProposalNotVotable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidPolicy),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, database.ErrDuplicateProposal),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated):
		return false
	}
	return true
}
