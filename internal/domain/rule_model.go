package domain

import "time"

type Policy string

const (
	PolicyAllowlist Policy = "ALLOWLIST"
	PolicyBlocklist Policy = "BLOCKLIST"
)

func (p Policy) Valid() bool {
	return p == PolicyAllowlist || p == PolicyBlocklist
}

type RuleType string

const (
	RuleTypeBinary      RuleType = "BINARY"
	RuleTypeCertificate RuleType = "CERTIFICATE"
	RuleTypeSigningID   RuleType = "SIGNINGID"
	RuleTypeTeamID      RuleType = "TEAMID"
	RuleTypeCDHash      RuleType = "CDHASH"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeBinary, RuleTypeCertificate, RuleTypeSigningID, RuleTypeTeamID, RuleTypeCDHash:
		return true
	}
	return false
}

// Rule is an enforced policy entry, the single source of truth consulted by
// the endpoint agent. At most one rule exists per identifier; replacement is
// delete+insert, never a partial update.
type Rule struct {
	ID            uint64  `gorm:"primaryKey;autoIncrement"`
	Identifier    string  `gorm:"uniqueIndex;not null;size:512"`
	RuleType      RuleType `gorm:"not null;size:16"`
	Policy        Policy  `gorm:"not null;size:16"`
	CustomMessage *string `gorm:"size:512" json:"custom_message,omitempty"`
	Comment       *string `gorm:"size:512" json:"comment,omitempty"`

	// ProposalID is set when the rule was resolved from a proposal and nil
	// for rules created directly by an admin.
	ProposalID *uint64 `json:"proposal_id,omitempty"`
	CreatedBy  *uint   `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
