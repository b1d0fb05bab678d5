package governance

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
)

func setupTestEngine(t *testing.T, threshold int) *Engine {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Rule{},
		&domain.Proposal{},
		&domain.Vote{},
		&domain.Event{},
		&domain.Machine{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	return NewEngine(threshold)
}

// seedAccount makes sure the principal's user row exists, since proposals
// and votes reference users by foreign key.
func seedAccount(t *testing.T, id uint, role string) {
	t.Helper()

	user := domain.User{
		ID:       id,
		Username: fmt.Sprintf("user%d", id),
		Password: "hashed-password",
		Role:     role,
	}
	if err := database.DB.FirstOrCreate(&user, domain.User{ID: id}).Error; err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func testPrincipal(t *testing.T, id uint, username string) auth.Principal {
	t.Helper()
	seedAccount(t, id, domain.RoleUser)
	return auth.Principal{ID: id, Username: username, Role: domain.RoleUser}
}

func testAdmin(t *testing.T, id uint, username string) auth.Principal {
	t.Helper()
	seedAccount(t, id, domain.RoleAdmin)
	return auth.Principal{ID: id, Username: username, Role: domain.RoleAdmin}
}

func strPtr(s string) *string {
	return &s
}

func mustSubmit(t *testing.T, e *Engine, user auth.Principal, identifier string, policy domain.Policy) *domain.Proposal {
	t.Helper()

	proposal, err := e.Submit(user, SubmitRequest{
		Identifier: identifier,
		Policy:     policy,
		Rationale:  "test submission",
	})
	if err != nil {
		t.Fatalf("submit %s: %v", identifier, err)
	}
	return proposal
}
