package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Capability is the minimum privilege an endpoint requires.
type Capability string

const (
	CapabilityUser       Capability = "user"
	CapabilityAdmin      Capability = "admin"
	CapabilitySuperAdmin Capability = "super_admin"
)

type Account struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"size:100;not null" json:"name"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"size:1024;not null" json:"-"`
	Role         string `gorm:"size:16;not null;default:user;index:idx_accounts_role" json:"role"`
	IsSuperAdmin bool   `gorm:"not null;default:false" json:"is_super_admin"`
	// SuperAdminSlot is true for the super-admin and NULL otherwise; the unique
	// index lets the database reject a second super-admin.
	SuperAdminSlot      *bool      `gorm:"uniqueIndex:idx_accounts_super_admin_slot" json:"-"`
	Banned              bool       `gorm:"not null;default:false;index:idx_accounts_banned" json:"banned"`
	DateOfBirth         time.Time  `gorm:"type:date;not null" json:"date_of_birth"`
	ResetTokenHash      *string    `gorm:"size:64;index:idx_accounts_reset_token_hash" json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

func (a *Account) IsAdmin() bool {
	return a.IsSuperAdmin || a.Role == RoleAdmin
}

func (a *Account) HasCapability(c Capability) bool {
	switch c {
	case CapabilityUser:
		return true
	case CapabilityAdmin:
		return a.IsAdmin()
	case CapabilitySuperAdmin:
		return a.IsSuperAdmin
	default:
		return false
	}
}

func (a *Account) ClaimSuperAdminSlot() {
	slot := true
	a.IsSuperAdmin = true
	a.SuperAdminSlot = &slot
}

func (a *Account) ReleaseSuperAdminSlot() {
	a.IsSuperAdmin = false
	a.SuperAdminSlot = nil
}

// AgeOn returns the number of whole years between dob and on.
func AgeOn(dob, on time.Time) int {
	years := on.Year() - dob.Year()
	if on.Month() < dob.Month() || (on.Month() == dob.Month() && on.Day() < dob.Day()) {
		years--
	}
	return years
}
