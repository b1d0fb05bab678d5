package domain

import "time"

type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "PENDING"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusRejected ProposalStatus = "REJECTED"
)

// Proposal is a pending or resolved policy decision for one identifier.
// Status only ever moves PENDING -> APPROVED or PENDING -> REJECTED;
// terminal rows are never mutated again, only superseded by a fresh
// proposal once a rejection frees the identifier.
type Proposal struct {
	ID             uint64   `gorm:"primaryKey;autoIncrement"`
	Identifier     string   `gorm:"index;not null;size:512"`
	RuleType       RuleType `gorm:"not null;size:16"`
	ProposedPolicy Policy   `gorm:"not null;size:16"`
	CustomMessage  *string  `gorm:"size:512" json:"custom_message,omitempty"`
	Rationale      string   `gorm:"size:1024"`

	CreatedBy uint           `gorm:"not null;index"`
	Status    ProposalStatus `gorm:"not null;default:'PENDING';size:16;index"`

	// Cached tally snapshot, maintained by the vote engine for cheap reads.
	AllowlistVotes int `gorm:"not null;default:0"`
	BlocklistVotes int `gorm:"not null;default:0"`

	// ResolvedPolicy records the winning side once the proposal is
	// approved, which may differ from ProposedPolicy.
	ResolvedPolicy *Policy `gorm:"size:16" json:"resolved_policy,omitempty"`

	Votes []Vote `gorm:"foreignKey:ProposalID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

func (p *Proposal) Live() bool {
	return p.Status == ProposalStatusPending || p.Status == ProposalStatusApproved
}
