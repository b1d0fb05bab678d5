package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID       uint    `gorm:"primaryKey;autoIncrement"`
	Username string  `gorm:"uniqueIndex;not null;size:64"`
	Email    *string `gorm:"size:255" json:"email,omitempty"`
	Password string  `gorm:"not null;size:100" json:"-"`
	Role     string  `gorm:"not null;default:'user';check:role IN ('user', 'admin')"`

	//Relations
	Proposals []Proposal `gorm:"foreignKey:CreatedBy"`
	Votes     []Vote     `gorm:"foreignKey:UserID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
