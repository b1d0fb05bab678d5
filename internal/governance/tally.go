package governance

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
	"krampus/internal/notify"
)

// TallyResult is the state of a proposal right after one vote was counted.
type TallyResult struct {
	Proposal      *domain.Proposal `json:"proposal"`
	AllowCount    int              `json:"allowlist_votes"`
	BlockCount    int              `json:"blocklist_votes"`
	QuorumReached bool             `json:"quorum_reached"`
	Winning       *domain.Policy   `json:"winning_policy,omitempty"`
}

// Vote records or replaces the voter's vote, recounts from the vote rows and
// finalizes the proposal when a side reaches quorum. The recount, the status
// flip and the resulting rule write all share one transaction.
func (e *Engine) Vote(voter auth.Principal, proposalID uint64, policy domain.Policy) (*TallyResult, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}

	proposal, err := database.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}

	unlock := e.locks.Lock(proposal.Identifier)
	defer unlock()

	var result *TallyResult
	err = e.withConflictRetry("vote", func() error {
		result = nil
		return database.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			result, err = e.voteInTx(tx, voter, proposalID, policy)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	e.publishResolution(result)
	return result, nil
}

func (e *Engine) voteInTx(tx *gorm.DB, voter auth.Principal, proposalID uint64, policy domain.Policy) (*TallyResult, error) {
	proposal, err := database.GetProposalInTx(tx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}
	if proposal.Status != domain.ProposalStatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrProposalNotVotable, proposal.Status)
	}

	vote := &domain.Vote{
		ProposalID: proposalID,
		UserID:     voter.ID,
		VoteType:   policy,
	}
	if err := database.UpsertVoteInTx(tx, vote); err != nil {
		return nil, err
	}

	allow, block, err := database.CountVotesInTx(tx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := database.UpdateVoteSnapshotInTx(tx, proposalID, allow, block); err != nil {
		return nil, err
	}
	proposal.AllowlistVotes = allow
	proposal.BlocklistVotes = block

	result := &TallyResult{Proposal: proposal, AllowCount: allow, BlockCount: block}

	winner, err := e.decideQuorum(tx, proposalID, allow, block)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return result, nil
	}

	if err := e.finalizeInTx(tx, proposal, *winner); err != nil {
		return nil, err
	}
	result.QuorumReached = true
	result.Winning = winner
	return result, nil
}

// decideQuorum returns the winning policy once a side has at least
// threshold votes, or nil while voting stays open. When both sides hold
// quorum the side that completed it first wins: each side's deciding vote
// is its Nth oldest, and the earlier deciding vote settles it. Vote
// timestamps refresh on replacement, so switching sides also resets a
// voter's position in that order.
func (e *Engine) decideQuorum(tx *gorm.DB, proposalID uint64, allow, block int) (*domain.Policy, error) {
	allowQuorum := allow >= e.threshold
	blockQuorum := block >= e.threshold
	if !allowQuorum && !blockQuorum {
		return nil, nil
	}

	winner := domain.PolicyAllowlist
	if blockQuorum && !allowQuorum {
		winner = domain.PolicyBlocklist
	} else if allowQuorum && blockQuorum {
		allowNth, err := database.NthVoteInTx(tx, proposalID, domain.PolicyAllowlist, e.threshold)
		if err != nil {
			return nil, err
		}
		blockNth, err := database.NthVoteInTx(tx, proposalID, domain.PolicyBlocklist, e.threshold)
		if err != nil {
			return nil, err
		}
		if allowNth == nil || blockNth == nil {
			return nil, errors.New("vote count and vote rows disagree")
		}
		if blockNth.UpdatedAt.Before(allowNth.UpdatedAt) ||
			(blockNth.UpdatedAt.Equal(allowNth.UpdatedAt) && blockNth.ID < allowNth.ID) {
			winner = domain.PolicyBlocklist
		}
	}
	return &winner, nil
}

// finalizeInTx flips the proposal to APPROVED and writes the resolved rule
// in the caller's transaction. The guarded status update makes concurrent
// finalization attempts collapse into one.
func (e *Engine) finalizeInTx(tx *gorm.DB, proposal *domain.Proposal, winner domain.Policy) error {
	finalized, err := database.FinalizeProposalInTx(tx, proposal.ID, domain.ProposalStatusApproved, &winner)
	if err != nil {
		return err
	}
	if !finalized {
		return fmt.Errorf("%w: id %d", ErrInvalidTransition, proposal.ID)
	}

	createdBy := proposal.CreatedBy
	proposalID := proposal.ID
	rule := &domain.Rule{
		Identifier:    proposal.Identifier,
		RuleType:      proposal.RuleType,
		Policy:        winner,
		CustomMessage: proposal.CustomMessage,
		ProposalID:    &proposalID,
		CreatedBy:     &createdBy,
	}
	if err := database.UpsertRuleInTx(tx, rule); err != nil {
		return err
	}

	proposal.Status = domain.ProposalStatusApproved
	proposal.ResolvedPolicy = &winner
	return nil
}

// AdminApprove finalizes a pending proposal immediately with the given
// policy, regardless of the current tally.
func (e *Engine) AdminApprove(principal auth.Principal, proposalID uint64, policy domain.Policy) (*TallyResult, error) {
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
	return e.resolveByAdmin(principal, proposalID, domain.ProposalStatusApproved, &policy)
}

// AdminReject closes a pending proposal without a rule, freeing the
// identifier for future proposals.
func (e *Engine) AdminReject(principal auth.Principal, proposalID uint64) (*TallyResult, error) {
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return e.resolveByAdmin(principal, proposalID, domain.ProposalStatusRejected, nil)
}

func (e *Engine) resolveByAdmin(principal auth.Principal, proposalID uint64, status domain.ProposalStatus, policy *domain.Policy) (*TallyResult, error) {
	proposal, err := database.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
	}

	unlock := e.locks.Lock(proposal.Identifier)
	defer unlock()

	var result *TallyResult
	err = e.withConflictRetry("admin resolve", func() error {
		result = nil
		return database.DB.Transaction(func(tx *gorm.DB) error {
			current, err := database.GetProposalInTx(tx, proposalID)
			if err != nil {
				return err
			}
			if current == nil {
				return fmt.Errorf("%w: id %d", ErrProposalNotFound, proposalID)
			}
			if current.Status != domain.ProposalStatusPending {
				return fmt.Errorf("%w: status %s", ErrInvalidTransition, current.Status)
			}

			result = &TallyResult{
				Proposal:   current,
				AllowCount: current.AllowlistVotes,
				BlockCount: current.BlocklistVotes,
			}

			if status == domain.ProposalStatusRejected {
				finalized, err := database.FinalizeProposalInTx(tx, proposalID, status, nil)
				if err != nil {
					return err
				}
				if !finalized {
					return fmt.Errorf("%w: id %d", ErrInvalidTransition, proposalID)
				}
				current.Status = status
				return nil
			}

			if err := e.finalizeInTx(tx, current, *policy); err != nil {
				return err
			}
			result.QuorumReached = true
			result.Winning = policy
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("Proposal resolved by admin", "id", proposalID, "status", status,
		"admin", principal.Username)
	e.publishResolution(result)
	if status == domain.ProposalStatusRejected {
		e.publish(notify.Change{
			Entity:     notify.EntityProposal,
			Action:     notify.ActionResolved,
			Identifier: result.Proposal.Identifier,
			ID:         proposalID,
		})
	}
	return result, nil
}

func (e *Engine) publishResolution(result *TallyResult) {
	if result == nil || !result.QuorumReached {
		return
	}
	log.Info("Proposal approved", "id", result.Proposal.ID,
		"identifier", result.Proposal.Identifier, "policy", *result.Winning,
		"allow", result.AllowCount, "block", result.BlockCount)
	e.publish(notify.Change{
		Entity:     notify.EntityProposal,
		Action:     notify.ActionResolved,
		Identifier: result.Proposal.Identifier,
		ID:         result.Proposal.ID,
	})
	e.publish(notify.Change{
		Entity:     notify.EntityRule,
		Action:     notify.ActionCreated,
		Identifier: result.Proposal.Identifier,
	})
}
