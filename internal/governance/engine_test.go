package governance

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
)

func TestSubmitClassifiesIdentifier(t *testing.T) {
	engine := setupTestEngine(t, 3)
	alice := testPrincipal(t, 1, "alice")

	hash := strings.Repeat("AB", 32)
	proposal := mustSubmit(t, engine, alice, hash, domain.PolicyAllowlist)

	if proposal.RuleType != domain.RuleTypeBinary {
		t.Errorf("rule type = %s, want %s", proposal.RuleType, domain.RuleTypeBinary)
	}
	if proposal.Identifier != strings.ToLower(hash) {
		t.Errorf("identifier = %q, want lowercased hash", proposal.Identifier)
	}
	if proposal.Status != domain.ProposalStatusPending {
		t.Errorf("status = %s, want PENDING", proposal.Status)
	}

	signed := mustSubmit(t, engine, alice, "com.example.app", domain.PolicyBlocklist)
	if signed.RuleType != domain.RuleTypeSigningID {
		t.Errorf("rule type = %s, want %s", signed.RuleType, domain.RuleTypeSigningID)
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	engine := setupTestEngine(t, 3)
	alice := testPrincipal(t, 1, "alice")

	if _, err := engine.Submit(alice, SubmitRequest{Identifier: "com.example.app", Policy: "MAYBE"}); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("bad policy error = %v, want ErrInvalidPolicy", err)
	}
	if _, err := engine.Submit(alice, SubmitRequest{Identifier: "", Policy: domain.PolicyAllowlist}); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("empty identifier error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestSubmitBlockedByExistingRule(t *testing.T) {
	engine := setupTestEngine(t, 3)
	alice := testPrincipal(t, 1, "alice")

	rule := &domain.Rule{
		Identifier: "com.example.app",
		RuleType:   domain.RuleTypeSigningID,
		Policy:     domain.PolicyBlocklist,
	}
	if err := database.UpsertRule(rule); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	_, err := engine.Submit(alice, SubmitRequest{
		Identifier: "com.example.app",
		Policy:     domain.PolicyAllowlist,
	})
	if !errors.Is(err, ErrAlreadyRuled) {
		t.Errorf("error = %v, want ErrAlreadyRuled", err)
	}
}

func TestSubmitDuplicateReturnsExisting(t *testing.T) {
	engine := setupTestEngine(t, 3)
	alice := testPrincipal(t, 1, "alice")
	bob := testPrincipal(t, 2, "bob")

	first := mustSubmit(t, engine, alice, "com.example.app", domain.PolicyAllowlist)

	_, err := engine.Submit(bob, SubmitRequest{
		Identifier: "com.example.app",
		Policy:     domain.PolicyBlocklist,
	})
	if !errors.Is(err, ErrAlreadyProposed) {
		t.Fatalf("error = %v, want ErrAlreadyProposed", err)
	}

	var dup *AlreadyProposedError
	if !errors.As(err, &dup) {
		t.Fatalf("error %v does not carry the existing proposal", err)
	}
	if dup.Existing.ID != first.ID {
		t.Errorf("existing proposal id = %d, want %d", dup.Existing.ID, first.ID)
	}
}

func TestSubmitConcurrentSameIdentifier(t *testing.T) {
	engine := setupTestEngine(t, 3)

	const submitters = 8
	var created, duplicated atomic.Int64

	var g errgroup.Group
	for i := 0; i < submitters; i++ {
		user := testPrincipal(t, uint(i+1), "user")
		g.Go(func() error {
			_, err := engine.Submit(user, SubmitRequest{
				Identifier: "com.example.racer",
				Policy:     domain.PolicyAllowlist,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrAlreadyProposed):
				duplicated.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submit: %v", err)
	}

	if created.Load() != 1 {
		t.Errorf("created = %d, want exactly 1", created.Load())
	}
	if duplicated.Load() != submitters-1 {
		t.Errorf("duplicates = %d, want %d", duplicated.Load(), submitters-1)
	}
}

func TestCreateRuleRequiresAdmin(t *testing.T) {
	engine := setupTestEngine(t, 3)

	req := CreateRuleRequest{
		Identifier: "com.example.app",
		Policy:     domain.PolicyAllowlist,
	}
	if _, err := engine.CreateRule(testPrincipal(t, 1, "alice"), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin create error = %v, want ErrUnauthorized", err)
	}

	rule, err := engine.CreateRule(testAdmin(t, 2, "root"), req)
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if rule.ProposalID != nil {
		t.Errorf("direct rule should have no proposal provenance, got %d", *rule.ProposalID)
	}
}

func TestDeleteRule(t *testing.T) {
	engine := setupTestEngine(t, 3)
	admin := testAdmin(t, 1, "root")

	rule, err := engine.CreateRule(admin, CreateRuleRequest{
		Identifier: "com.example.app",
		Policy:     domain.PolicyBlocklist,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if _, err := engine.DeleteRule(testPrincipal(t, 2, "alice"), rule.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin delete error = %v, want ErrUnauthorized", err)
	}

	deleted, err := engine.DeleteRule(admin, rule.ID)
	if err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if !deleted {
		t.Fatal("expected first delete to report true")
	}

	deleted, err = engine.DeleteRule(admin, rule.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report false")
	}
}

func TestSubmitUnknownUserFailsWithoutRetry(t *testing.T) {
	engine := setupTestEngine(t, 3)

	// No user row backs this principal, so the insert violates the
	// proposals.created_by foreign key. That is a permanent error and must
	// come back as-is instead of being retried into ErrStoreUnavailable.
	ghost := auth.Principal{ID: 404, Username: "ghost", Role: domain.RoleUser}
	_, err := engine.Submit(ghost, SubmitRequest{
		Identifier: "com.example.app",
		Policy:     domain.PolicyAllowlist,
	})
	if !errors.Is(err, gorm.ErrForeignKeyViolated) {
		t.Fatalf("submit error = %v, want gorm.ErrForeignKeyViolated", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Fatal("constraint violation must not be reported as a transient store failure")
	}
}
