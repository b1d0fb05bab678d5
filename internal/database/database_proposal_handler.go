package database

import (
	"errors"
	"time"

	"krampus/internal/domain"

	"gorm.io/gorm"
)

// ErrDuplicateProposal is returned when a live (PENDING or APPROVED)
// proposal already exists for the identifier.
var ErrDuplicateProposal = errors.New("a live proposal already exists for this identifier")

func GetProposal(id uint64) (*domain.Proposal, error) {
	return getProposal(DB, id)
}

func GetProposalInTx(tx *gorm.DB, id uint64) (*domain.Proposal, error) {
	return getProposal(tx, id)
}

func getProposal(db *gorm.DB, id uint64) (*domain.Proposal, error) {
	var proposal domain.Proposal
	err := db.First(&proposal, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// FindLiveProposalByIdentifier returns the most recent non-REJECTED proposal
// for the identifier, or nil. Rejected proposals free the identifier, so
// they never count.
func FindLiveProposalByIdentifier(identifier string) (*domain.Proposal, error) {
	return findLiveProposalByIdentifier(DB, identifier)
}

func findLiveProposalByIdentifier(db *gorm.DB, identifier string) (*domain.Proposal, error) {
	var proposal domain.Proposal
	err := db.
		Where("identifier = ?", identifier).
		Where("status IN ?", []domain.ProposalStatus{domain.ProposalStatusPending, domain.ProposalStatusApproved}).
		Order("created_at DESC").
		Order("id DESC").
		First(&proposal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// CreateProposal persists a new PENDING proposal. The live-proposal check is
// re-run inside the insert transaction: callers are expected to have checked
// already, but the recheck closes the race between check and insert.
func CreateProposal(proposal *domain.Proposal) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		existing, err := findLiveProposalByIdentifier(tx, proposal.Identifier)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateProposal
		}
		proposal.Status = domain.ProposalStatusPending
		return tx.Create(proposal).Error
	})
}

// ListProposals returns proposals, newest first, optionally filtered by
// status.
func ListProposals(status domain.ProposalStatus) ([]domain.Proposal, error) {
	query := DB.Model(&domain.Proposal{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var proposals []domain.Proposal
	if err := query.Order("created_at DESC").Order("id DESC").Find(&proposals).Error; err != nil {
		return nil, err
	}
	return proposals, nil
}

// FinalizeProposalInTx marks a PENDING proposal terminal. Status and
// resolution are written together so no observer sees a half-finalized row.
// Returns false when the proposal was no longer pending and nothing changed.
func FinalizeProposalInTx(tx *gorm.DB, id uint64, status domain.ProposalStatus, resolved *domain.Policy) (bool, error) {
	now := time.Now()
	result := tx.Model(&domain.Proposal{}).
		Where("id = ? AND status = ?", id, domain.ProposalStatusPending).
		Updates(map[string]any{
			"status":          status,
			"resolved_policy": resolved,
			"finalized_at":    &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateVoteSnapshotInTx refreshes the cached tally counters on the
// proposal row.
func UpdateVoteSnapshotInTx(tx *gorm.DB, id uint64, allow, block int) error {
	return tx.Model(&domain.Proposal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"allowlist_votes": allow,
			"blocklist_votes": block,
		}).Error
}
