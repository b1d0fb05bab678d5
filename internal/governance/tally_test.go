package governance

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"krampus/internal/database"
	"krampus/internal/domain"
)

func TestVoteQuorumApprovesAndWritesRule(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	for i, user := range []uint{1, 2} {
		result, err := engine.Vote(testPrincipal(t, user, "voter"), proposal.ID, domain.PolicyAllowlist)
		if err != nil {
			t.Fatalf("vote %d: %v", i+1, err)
		}
		if result.QuorumReached {
			t.Fatalf("quorum reached after %d votes", i+1)
		}
		if result.AllowCount != i+1 {
			t.Errorf("allow count = %d, want %d", result.AllowCount, i+1)
		}
	}

	result, err := engine.Vote(testPrincipal(t, 3, "carol"), proposal.ID, domain.PolicyAllowlist)
	if err != nil {
		t.Fatalf("deciding vote: %v", err)
	}
	if !result.QuorumReached {
		t.Fatal("expected third vote to reach quorum")
	}
	if *result.Winning != domain.PolicyAllowlist {
		t.Errorf("winning policy = %s, want ALLOWLIST", *result.Winning)
	}
	if result.Proposal.Status != domain.ProposalStatusApproved {
		t.Errorf("status = %s, want APPROVED", result.Proposal.Status)
	}

	rule, err := database.GetRuleByIdentifier("com.example.app")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if rule == nil {
		t.Fatal("expected resolved rule")
	}
	if rule.Policy != domain.PolicyAllowlist {
		t.Errorf("rule policy = %s, want ALLOWLIST", rule.Policy)
	}
	if rule.ProposalID == nil || *rule.ProposalID != proposal.ID {
		t.Errorf("rule proposal provenance = %v, want %d", rule.ProposalID, proposal.ID)
	}
}

func TestVoteOnResolvedProposal(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	for _, user := range []uint{1, 2, 3} {
		if _, err := engine.Vote(testPrincipal(t, user, "voter"), proposal.ID, domain.PolicyAllowlist); err != nil {
			t.Fatalf("vote by user %d: %v", user, err)
		}
	}

	_, err := engine.Vote(testPrincipal(t, 4, "dave"), proposal.ID, domain.PolicyAllowlist)
	if !errors.Is(err, ErrProposalNotVotable) {
		t.Errorf("late vote error = %v, want ErrProposalNotVotable", err)
	}
}

func TestVoteIdempotentPerVoter(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)
	alice := testPrincipal(t, 1, "alice")

	for i := 0; i < 3; i++ {
		result, err := engine.Vote(alice, proposal.ID, domain.PolicyAllowlist)
		if err != nil {
			t.Fatalf("repeat vote %d: %v", i+1, err)
		}
		if result.AllowCount != 1 {
			t.Errorf("allow count after repeat = %d, want 1", result.AllowCount)
		}
		if result.QuorumReached {
			t.Fatal("repeated votes from one voter must not reach quorum")
		}
	}
}

func TestVoteOverrideMovesCount(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)
	alice := testPrincipal(t, 1, "alice")

	if _, err := engine.Vote(alice, proposal.ID, domain.PolicyAllowlist); err != nil {
		t.Fatalf("initial vote: %v", err)
	}

	result, err := engine.Vote(alice, proposal.ID, domain.PolicyBlocklist)
	if err != nil {
		t.Fatalf("override vote: %v", err)
	}
	if result.AllowCount != 0 || result.BlockCount != 1 {
		t.Errorf("counts after override = %d/%d, want 0/1", result.AllowCount, result.BlockCount)
	}
}

func TestVoteSplitResolvesToFirstQuorum(t *testing.T) {
	engine := setupTestEngine(t, 2)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	// Two blocklist votes complete quorum before the allowlist side exists.
	if _, err := engine.Vote(testPrincipal(t, 1, "a"), proposal.ID, domain.PolicyBlocklist); err != nil {
		t.Fatalf("vote: %v", err)
	}
	result, err := engine.Vote(testPrincipal(t, 2, "b"), proposal.ID, domain.PolicyBlocklist)
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if !result.QuorumReached || *result.Winning != domain.PolicyBlocklist {
		t.Fatalf("result = %+v, want blocklist quorum", result)
	}

	rule, err := database.GetRuleByIdentifier("com.example.app")
	if err != nil || rule == nil {
		t.Fatalf("rule after quorum: %v %v", rule, err)
	}
	if rule.Policy != domain.PolicyBlocklist {
		t.Errorf("rule policy = %s, want BLOCKLIST", rule.Policy)
	}
}

func TestVoteProposalNotFound(t *testing.T) {
	engine := setupTestEngine(t, 3)

	_, err := engine.Vote(testPrincipal(t, 1, "alice"), 999, domain.PolicyAllowlist)
	if !errors.Is(err, ErrProposalNotFound) {
		t.Errorf("error = %v, want ErrProposalNotFound", err)
	}
}

func TestAdminApproveOverridesTally(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	for _, user := range []uint{1, 2} {
		if _, err := engine.Vote(testPrincipal(t, user, "voter"), proposal.ID, domain.PolicyAllowlist); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}

	if _, err := engine.AdminApprove(testPrincipal(t, 5, "mallory"), proposal.ID, domain.PolicyBlocklist); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin approve error = %v, want ErrUnauthorized", err)
	}

	result, err := engine.AdminApprove(testAdmin(t, 9, "root"), proposal.ID, domain.PolicyBlocklist)
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if !result.QuorumReached || *result.Winning != domain.PolicyBlocklist {
		t.Fatalf("result = %+v, want forced blocklist resolution", result)
	}

	rule, err := database.GetRuleByIdentifier("com.example.app")
	if err != nil || rule == nil {
		t.Fatalf("rule after admin approve: %v %v", rule, err)
	}
	if rule.Policy != domain.PolicyBlocklist {
		t.Errorf("rule policy = %s, want admin's BLOCKLIST", rule.Policy)
	}

	if _, err := engine.AdminApprove(testAdmin(t, 9, "root"), proposal.ID, domain.PolicyAllowlist); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second approve error = %v, want ErrInvalidTransition", err)
	}
}

func TestAdminRejectFreesIdentifier(t *testing.T) {
	engine := setupTestEngine(t, 3)
	alice := testPrincipal(t, 1, "alice")
	proposal := mustSubmit(t, engine, alice, "com.example.app", domain.PolicyAllowlist)

	result, err := engine.AdminReject(testAdmin(t, 9, "root"), proposal.ID)
	if err != nil {
		t.Fatalf("admin reject: %v", err)
	}
	if result.Proposal.Status != domain.ProposalStatusRejected {
		t.Errorf("status = %s, want REJECTED", result.Proposal.Status)
	}

	rule, err := database.GetRuleByIdentifier("com.example.app")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if rule != nil {
		t.Error("rejection must not write a rule")
	}

	// A rejected proposal no longer blocks the identifier.
	fresh := mustSubmit(t, engine, alice, "com.example.app", domain.PolicyBlocklist)
	if fresh.ID == proposal.ID {
		t.Error("expected a new proposal row after rejection")
	}
}

func TestVoteConcurrentFinalVotes(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	for _, user := range []uint{1, 2} {
		if _, err := engine.Vote(testPrincipal(t, user, "voter"), proposal.ID, domain.PolicyAllowlist); err != nil {
			t.Fatalf("setup vote: %v", err)
		}
	}

	var resolved, rejectedLate atomic.Int64
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		user := testPrincipal(t, uint(i+10), "late")
		g.Go(func() error {
			result, err := engine.Vote(user, proposal.ID, domain.PolicyAllowlist)
			switch {
			case err == nil:
				if result.QuorumReached {
					resolved.Add(1)
				}
				return nil
			case errors.Is(err, ErrProposalNotVotable):
				rejectedLate.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent final votes: %v", err)
	}

	if resolved.Load() != 1 {
		t.Errorf("resolutions = %d, want exactly 1", resolved.Load())
	}
	if resolved.Load()+rejectedLate.Load() != 4 {
		t.Errorf("accounted votes = %d, want 4", resolved.Load()+rejectedLate.Load())
	}

	rules, err := database.ListRules("", "")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules after race = %d, want 1", len(rules))
	}
}

func TestFullConsensusFlow(t *testing.T) {
	engine := setupTestEngine(t, 3)
	hash := strings.Repeat("a", 64)

	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), hash, domain.PolicyAllowlist)
	if proposal.RuleType != domain.RuleTypeBinary {
		t.Fatalf("rule type = %s, want BINARY", proposal.RuleType)
	}

	if _, err := engine.Vote(testPrincipal(t, 2, "bob"), proposal.ID, domain.PolicyAllowlist); err != nil {
		t.Fatalf("bob votes: %v", err)
	}
	if _, err := engine.Vote(testPrincipal(t, 3, "carol"), proposal.ID, domain.PolicyBlocklist); err != nil {
		t.Fatalf("carol votes: %v", err)
	}

	// Carol reconsiders; her switch lands allowlist at two votes.
	if _, err := engine.Vote(testPrincipal(t, 3, "carol"), proposal.ID, domain.PolicyAllowlist); err != nil {
		t.Fatalf("carol switches: %v", err)
	}

	result, err := engine.Vote(testPrincipal(t, 4, "dave"), proposal.ID, domain.PolicyAllowlist)
	if err != nil {
		t.Fatalf("dave votes: %v", err)
	}
	if !result.QuorumReached {
		t.Fatal("expected dave's vote to close the proposal")
	}
	if result.AllowCount != 3 || result.BlockCount != 0 {
		t.Errorf("final tally = %d/%d, want 3/0", result.AllowCount, result.BlockCount)
	}

	rule, err := database.GetRuleByIdentifier(hash)
	if err != nil || rule == nil {
		t.Fatalf("resolved rule: %v %v", rule, err)
	}
	if rule.RuleType != domain.RuleTypeBinary || rule.Policy != domain.PolicyAllowlist {
		t.Errorf("rule = %s/%s, want BINARY/ALLOWLIST", rule.RuleType, rule.Policy)
	}
}

func TestFinalizeRefusesAlreadyResolvedProposal(t *testing.T) {
	engine := setupTestEngine(t, 3)
	proposal := mustSubmit(t, engine, testPrincipal(t, 1, "alice"), "com.example.app", domain.PolicyAllowlist)

	// Resolve the proposal behind the finalizer's back. The guarded status
	// update then matches no row, and no rule may be written.
	err := database.DB.Model(&domain.Proposal{}).
		Where("id = ?", proposal.ID).
		Update("status", domain.ProposalStatusRejected).Error
	if err != nil {
		t.Fatalf("flip status: %v", err)
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		return engine.finalizeInTx(tx, proposal, domain.PolicyAllowlist)
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("finalize error = %v, want ErrInvalidTransition", err)
	}

	rule, err := database.GetRuleByIdentifier("com.example.app")
	if err != nil {
		t.Fatalf("rule lookup: %v", err)
	}
	if rule != nil {
		t.Fatalf("rule written for a resolved proposal: %+v", rule)
	}
}
