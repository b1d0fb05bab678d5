package database

import (
	"errors"

	"krampus/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertVoteInTx records a voter's current decision. A second vote from the
// same voter replaces the first, refreshing updated_at so the replacement
// counts as that side's newest arrival.
func UpsertVoteInTx(tx *gorm.DB, vote *domain.Vote) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "proposal_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"vote_type":  vote.VoteType,
			"updated_at": tx.NowFunc(),
		}),
	}).Create(vote).Error
}

// CountVotesInTx recomputes the tally from the latest vote per voter.
func CountVotesInTx(tx *gorm.DB, proposalID uint64) (allow, block int, err error) {
	var allow64, block64 int64

	err = tx.Model(&domain.Vote{}).
		Where("proposal_id = ? AND vote_type = ?", proposalID, domain.PolicyAllowlist).
		Count(&allow64).Error
	if err != nil {
		return 0, 0, err
	}

	err = tx.Model(&domain.Vote{}).
		Where("proposal_id = ? AND vote_type = ?", proposalID, domain.PolicyBlocklist).
		Count(&block64).Error
	if err != nil {
		return 0, 0, err
	}

	return int(allow64), int(block64), nil
}

// NthVoteInTx returns the vote that completed a side's nth position in
// arrival order (updated_at, then row id), or nil when the side holds fewer
// than n votes. The resolver compares the two sides' nth votes to break
// quorum ties deterministically.
func NthVoteInTx(tx *gorm.DB, proposalID uint64, policy domain.Policy, n int) (*domain.Vote, error) {
	if n < 1 {
		return nil, nil
	}

	var votes []domain.Vote
	err := tx.Where("proposal_id = ? AND vote_type = ?", proposalID, policy).
		Order("updated_at").
		Order("id").
		Limit(n).
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	if len(votes) < n {
		return nil, nil
	}
	return &votes[n-1], nil
}

// GetUserVote returns a voter's current vote on a proposal, or nil.
func GetUserVote(proposalID uint64, userID uint) (*domain.Vote, error) {
	var vote domain.Vote
	err := DB.Where("proposal_id = ? AND user_id = ?", proposalID, userID).First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}
