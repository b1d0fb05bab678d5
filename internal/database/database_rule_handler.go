package database

import (
	"errors"

	"krampus/internal/domain"

	"gorm.io/gorm"
)

func GetRule(id uint64) (*domain.Rule, error) {
	var rule domain.Rule
	err := DB.First(&rule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRuleByIdentifier returns the enforced rule for an identifier, or nil
// when none exists.
func GetRuleByIdentifier(identifier string) (*domain.Rule, error) {
	return getRuleByIdentifier(DB, identifier)
}

func getRuleByIdentifier(db *gorm.DB, identifier string) (*domain.Rule, error) {
	var rule domain.Rule
	err := db.Where("identifier = ?", identifier).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpsertRule replaces any existing rule for the identifier. Re-upserting an
// identical rule is a no-op so retries never churn row ids or timestamps;
// a differing rule is replaced by delete+insert, never partially updated.
func UpsertRule(rule *domain.Rule) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		return UpsertRuleInTx(tx, rule)
	})
}

func UpsertRuleInTx(tx *gorm.DB, rule *domain.Rule) error {
	existing, err := getRuleByIdentifier(tx, rule.Identifier)
	if err != nil {
		return err
	}
	if existing != nil {
		if sameRule(existing, rule) {
			*rule = *existing
			return nil
		}
		if err := tx.Delete(&domain.Rule{}, existing.ID).Error; err != nil {
			return err
		}
	}
	return tx.Create(rule).Error
}

func sameRule(a, b *domain.Rule) bool {
	return a.Identifier == b.Identifier &&
		a.RuleType == b.RuleType &&
		a.Policy == b.Policy &&
		equalStringPtr(a.CustomMessage, b.CustomMessage) &&
		equalStringPtr(a.Comment, b.Comment)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteRule removes a rule by row id and reports whether one existed.
func DeleteRule(id uint64) (bool, error) {
	result := DB.Delete(&domain.Rule{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func DeleteRuleByIdentifier(identifier string) (bool, error) {
	result := DB.Where("identifier = ?", identifier).Delete(&domain.Rule{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListRules returns rules ordered by creation, optionally filtered. The
// (created_at, id) ordering is stable across pages.
func ListRules(policy domain.Policy, ruleType domain.RuleType) ([]domain.Rule, error) {
	query := DB.Model(&domain.Rule{})
	if policy != "" {
		query = query.Where("policy = ?", policy)
	}
	if ruleType != "" {
		query = query.Where("rule_type = ?", ruleType)
	}

	var rules []domain.Rule
	if err := query.Order("created_at").Order("id").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ListRulesAfter returns up to limit rules with id greater than cursor,
// the resume point used by agent rule download.
func ListRulesAfter(cursor uint64, limit int) ([]domain.Rule, error) {
	var rules []domain.Rule
	err := DB.Where("id > ?", cursor).
		Order("id").
		Limit(limit).
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
