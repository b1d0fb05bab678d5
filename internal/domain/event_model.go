package domain

import "time"

// Event is one execution attempt reported by an endpoint agent. Rows are
// append-only; the governance engine only ever reads them.
type Event struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	MachineID string `gorm:"not null;index;size:64"`

	FileHash      string  `gorm:"not null;index;size:64"`
	FilePath      *string `gorm:"size:1024" json:"file_path,omitempty"`
	Decision      *string `gorm:"size:32" json:"decision,omitempty"`
	ExecutingUser *string `gorm:"size:64" json:"executing_user,omitempty"`

	CertSHA256 *string `gorm:"size:64" json:"cert_sha256,omitempty"`
	CertCN     *string `gorm:"size:255" json:"cert_cn,omitempty"`
	SigningID  *string `gorm:"size:255" json:"signing_id,omitempty"`
	TeamID     *string `gorm:"size:32" json:"team_id,omitempty"`
	CDHash     *string `gorm:"size:40" json:"cdhash,omitempty"`

	BundleID   *string `gorm:"size:255" json:"bundle_id,omitempty"`
	BundleName *string `gorm:"size:255" json:"bundle_name,omitempty"`
	BundlePath *string `gorm:"size:1024" json:"bundle_path,omitempty"`

	ExecutionTime time.Time `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}
