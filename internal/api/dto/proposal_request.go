package dto

import "krampus/internal/domain"

type ProposalCreate struct {
	Identifier    string          `json:"identifier"`
	RuleType      domain.RuleType `json:"rule_type,omitempty"`
	Policy        domain.Policy   `json:"policy"`
	CustomMessage *string         `json:"custom_message,omitempty"`
	Rationale     string          `json:"rationale,omitempty"`
}

type VoteRequest struct {
	Policy domain.Policy `json:"policy"`
}

// ApproveRequest carries the policy an admin forces onto a proposal. When
// empty the proposed policy is used.
type ApproveRequest struct {
	Policy domain.Policy `json:"policy,omitempty"`
}

type RuleCreate struct {
	Identifier    string          `json:"identifier"`
	RuleType      domain.RuleType `json:"rule_type,omitempty"`
	Policy        domain.Policy   `json:"policy"`
	CustomMessage *string         `json:"custom_message,omitempty"`
	Comment       *string         `json:"comment,omitempty"`
}
