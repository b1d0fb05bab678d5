package governance

import (
	"fmt"

	"krampus/internal/classify"
	"krampus/internal/database"
	"krampus/internal/domain"
)

// ProposalDraft is a pre-filled submission suggested from an execution
// event. Drafts are advisory; nothing is written until a user submits one.
type ProposalDraft struct {
	Identifier string          `json:"identifier"`
	RuleType   domain.RuleType `json:"rule_type"`
	Policy     domain.Policy   `json:"policy"`
	Rationale  string          `json:"rationale"`
}

// SuggestProposal builds an allowlist draft from a blocked execution event,
// or returns nil when the identifier is already ruled or already has a live
// proposal. It prefers the event's signing ID over the raw file hash since
// signing rules survive binary updates.
func (e *Engine) SuggestProposal(event *domain.Event) (*ProposalDraft, error) {
	raw := event.FileHash
	if event.SigningID != nil && *event.SigningID != "" {
		raw = *event.SigningID
	}

	identifier, err := classify.Classify(raw)
	if err != nil {
		return nil, err
	}

	rule, err := database.GetRuleByIdentifier(identifier.Value)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		return nil, nil
	}

	live, err := database.FindLiveProposalByIdentifier(identifier.Value)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, nil
	}

	return &ProposalDraft{
		Identifier: identifier.Value,
		RuleType:   identifier.Kind,
		Policy:     domain.PolicyAllowlist,
		Rationale:  draftRationale(event),
	}, nil
}

func draftRationale(event *domain.Event) string {
	subject := "binary"
	switch {
	case event.BundleName != nil && *event.BundleName != "":
		subject = *event.BundleName
	case event.BundleID != nil && *event.BundleID != "":
		subject = *event.BundleID
	case event.FilePath != nil && *event.FilePath != "":
		subject = *event.FilePath
	}
	return fmt.Sprintf("Execution of %s was blocked on machine %s", subject, event.MachineID)
}
