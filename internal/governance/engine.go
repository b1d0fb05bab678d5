package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"krampus/internal/auth"
	"krampus/internal/classify"
	"krampus/internal/database"
	"krampus/internal/domain"
	"krampus/internal/notify"
)

const (
	maxResolveAttempts = 3
	retryBaseDelay     = 25 * time.Millisecond
)

// Engine is the proposal consensus and rule resolution core. All
// check-then-act sequences run under a per-identifier lock; the database
// re-validates the same invariants inside its transactions, so even two
// engine instances sharing a database cannot create duplicate live
// proposals.
type Engine struct {
	threshold int
	locks     *keyedMutex
	changes   *notify.Broadcaster
}

type EngineOption func(*Engine)

// WithBroadcaster wires committed mutations to the change-event channel.
func WithBroadcaster(b *notify.Broadcaster) EngineOption {
	return func(e *Engine) {
		e.changes = b
	}
}

func NewEngine(threshold int, opts ...EngineOption) *Engine {
	if threshold < 1 {
		threshold = 1
	}
	e := &Engine{
		threshold: threshold,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Threshold() int {
	return e.threshold
}

type SubmitRequest struct {
	Identifier    string
	RuleType      domain.RuleType // empty: classify heuristically
	Policy        domain.Policy
	CustomMessage *string
	Rationale     string
}

// Submit creates a PENDING proposal for a novel identifier. It fails with
// ErrAlreadyRuled when a rule exists, and with AlreadyProposedError when a
// live proposal exists, so the caller can vote on that one instead.
func (e *Engine) Submit(principal auth.Principal, req SubmitRequest) (*domain.Proposal, error) {
	if !req.Policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, req.Policy)
	}

	identifier, err := e.classifyRequest(req.RuleType, req.Identifier)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(identifier.Value)
	defer unlock()

	var proposal *domain.Proposal
	err = e.withConflictRetry("submit", func() error {
		rule, err := database.GetRuleByIdentifier(identifier.Value)
		if err != nil {
			return err
		}
		if rule != nil {
			return fmt.Errorf("%w: %s", ErrAlreadyRuled, identifier.Value)
		}

		existing, err := database.FindLiveProposalByIdentifier(identifier.Value)
		if err != nil {
			return err
		}
		if existing != nil {
			return &AlreadyProposedError{Existing: existing}
		}

		proposal = &domain.Proposal{
			Identifier:     identifier.Value,
			RuleType:       identifier.Kind,
			ProposedPolicy: req.Policy,
			CustomMessage:  req.CustomMessage,
			Rationale:      req.Rationale,
			CreatedBy:      principal.ID,
		}
		if err := database.CreateProposal(proposal); err != nil {
			// The store re-validates atomically: a duplicate slipping past
			// the check above means another submit won the race.
			if live, findErr := database.FindLiveProposalByIdentifier(identifier.Value); findErr == nil && live != nil {
				return &AlreadyProposedError{Existing: live}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Proposal created", "id", proposal.ID, "identifier", proposal.Identifier,
		"policy", proposal.ProposedPolicy, "user", principal.Username)
	e.publish(notify.Change{
		Entity:     notify.EntityProposal,
		Action:     notify.ActionCreated,
		Identifier: proposal.Identifier,
		ID:         proposal.ID,
	})
	return proposal, nil
}

type CreateRuleRequest struct {
	Identifier    string
	RuleType      domain.RuleType
	Policy        domain.Policy
	CustomMessage *string
	Comment       *string
}

// CreateRule writes a rule directly, bypassing the proposal flow. Admin
// only; an existing rule for the identifier is replaced.
func (e *Engine) CreateRule(principal auth.Principal, req CreateRuleRequest) (*domain.Rule, error) {
	if !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if !req.Policy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolicy, req.Policy)
	}

	identifier, err := e.classifyRequest(req.RuleType, req.Identifier)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(identifier.Value)
	defer unlock()

	createdBy := principal.ID
	rule := &domain.Rule{
		Identifier:    identifier.Value,
		RuleType:      identifier.Kind,
		Policy:        req.Policy,
		CustomMessage: req.CustomMessage,
		Comment:       req.Comment,
		CreatedBy:     &createdBy,
	}

	err = e.withConflictRetry("create rule", func() error {
		return database.UpsertRule(rule)
	})
	if err != nil {
		return nil, err
	}

	log.Info("Rule created", "identifier", rule.Identifier, "policy", rule.Policy,
		"admin", principal.Username)
	e.publish(notify.Change{
		Entity:     notify.EntityRule,
		Action:     notify.ActionCreated,
		Identifier: rule.Identifier,
		ID:         rule.ID,
	})
	return rule, nil
}

// DeleteRule removes a rule by id. Admin only.
func (e *Engine) DeleteRule(principal auth.Principal, id uint64) (bool, error) {
	if !principal.IsAdmin() {
		return false, ErrUnauthorized
	}

	rule, err := database.GetRule(id)
	if err != nil {
		return false, err
	}
	if rule == nil {
		return false, nil
	}

	unlock := e.locks.Lock(rule.Identifier)
	defer unlock()

	var deleted bool
	err = e.withConflictRetry("delete rule", func() error {
		var err error
		deleted, err = database.DeleteRule(id)
		return err
	})
	if err != nil {
		return false, err
	}

	if deleted {
		log.Info("Rule deleted", "identifier", rule.Identifier, "admin", principal.Username)
		e.publish(notify.Change{
			Entity:     notify.EntityRule,
			Action:     notify.ActionDeleted,
			Identifier: rule.Identifier,
			ID:         id,
		})
	}
	return deleted, nil
}

func (e *Engine) classifyRequest(kind domain.RuleType, raw string) (classify.Identifier, error) {
	if kind == "" {
		return classify.Classify(raw)
	}
	return classify.Normalize(kind, raw)
}

// withConflictRetry runs fn up to maxResolveAttempts times, backing off
// between transient store failures. Taxonomy errors pass through untouched;
// exhausted retries surface as ErrStoreUnavailable.
func (e *Engine) withConflictRetry(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBaseDelay << (attempt - 1))
		}
		err = fn()
		if !retryable(err) {
			return err
		}
		log.Warn("Store conflict, retrying", "op", op, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrStoreUnavailable, op, maxResolveAttempts, err)
}

func (e *Engine) publish(change notify.Change) {
	e.changes.Publish(context.Background(), change)
}
