package domain

import "time"

// Vote is one user's current decision on one proposal. The composite unique
// index makes a second vote from the same voter a replacement, never a
// duplicate; UpdatedAt therefore tracks the vote's arrival order.
type Vote struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ProposalID uint64 `gorm:"not null;uniqueIndex:idx_votes_proposal_voter,priority:1"`
	UserID     uint   `gorm:"not null;uniqueIndex:idx_votes_proposal_voter,priority:2"`
	VoteType   Policy `gorm:"not null;size:16"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
