package models

import "time"

// RelatedIdentity is one relationship card applied to a hosted identity.
// The uniqueness key is (IdentityID, ApplicationID): applications manage
// their own card slots independently.
type RelatedIdentity struct {
	ID uint `gorm:"primaryKey"`

	IdentityID    []byte `gorm:"uniqueIndex:idx_related_slot,priority:1;size:32;not null"`
	ApplicationID []byte `gorm:"uniqueIndex:idx_related_slot,priority:2;size:32;not null"`

	CardID      []byte `gorm:"size:32;not null"`
	CardVersion []byte `gorm:"size:3"`

	Type string `gorm:"size:64;index"`

	// Validity window in unix milliseconds.
	ValidFrom int64
	ValidTo   int64

	IssuerPublicKey    []byte `gorm:"size:32;not null"`
	RecipientPublicKey []byte `gorm:"size:32;not null"`

	IssuerSignature    []byte `gorm:"size:64;not null"`
	RecipientSignature []byte `gorm:"size:64;not null"`

	CreatedAt time.Time
}

// TableName returns the table name for RelatedIdentity.
func (RelatedIdentity) TableName() string {
	return "related_identities"
}
