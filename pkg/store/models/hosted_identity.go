package models

import (
	"crypto/ed25519"
	"time"

	"github.com/iop-labs/profiled/pkg/profile"
)

// HostedIdentity is an identity hosted on this server together with its
// signed profile.
//
// Lifecycle: a row is created uninitialized by a hosting agreement, becomes
// initialized by the first full profile update, may be updated any number of
// times, and is finally cancelled. Cancelled rows carry CancelledExpiresAt
// and are reaped by the maintenance sweeper once it passes.
type HostedIdentity struct {
	ID uint `gorm:"primaryKey"`

	// IdentityID is SHA256 of the public key, the identity's network
	// identifier.
	IdentityID []byte `gorm:"uniqueIndex;size:32;not null"`

	PublicKey []byte `gorm:"size:32;not null"`

	// Version is the 3-byte semantic profile version; all zero until the
	// profile is initialized.
	Version []byte `gorm:"size:3"`

	Name      string `gorm:"size:64;index"`
	Type      string `gorm:"size:64;index"`
	ExtraData string `gorm:"size:200;index"`

	// Initial GPS position in 1e6-scaled degrees.
	Latitude  int32 `gorm:"index:idx_hosted_location,priority:1;index:idx_hosted_search,priority:2"`
	Longitude int32 `gorm:"index:idx_hosted_location,priority:2;index:idx_hosted_search,priority:3"`

	ProfileImageHash   []byte `gorm:"size:32"`
	ThumbnailImageHash []byte `gorm:"size:32"`

	// Signature is the identity's Ed25519 signature over the canonical
	// profile encoding. Set on initialization, replaced on every update.
	Signature []byte `gorm:"size:64"`

	Initialized bool `gorm:"not null;default:false"`
	Cancelled   bool `gorm:"not null;default:false"`

	// CancelledExpiresAt is set when the hosting agreement is cancelled;
	// the row is reapable once it passes.
	CancelledExpiresAt *time.Time `gorm:"index:idx_hosted_search,priority:1"`

	// HostingServerID is non-empty only when the identity moved to another
	// server; GetProfileInformation redirects there.
	HostingServerID []byte `gorm:"size:32"`

	// CanObjectHash is the content-addressable-network object hash of the
	// identity's announced record, when one exists.
	CanObjectHash string `gorm:"size:128"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for HostedIdentity.
func (HostedIdentity) TableName() string {
	return "hosted_identities"
}

// Profile converts the row to the shared profile value.
func (h *HostedIdentity) Profile() *profile.Info {
	return &profile.Info{
		Version:            h.Version,
		PublicKey:          ed25519.PublicKey(h.PublicKey),
		Name:               h.Name,
		Type:               h.Type,
		ExtraData:          h.ExtraData,
		Location:           profile.Location{Latitude: h.Latitude, Longitude: h.Longitude},
		ProfileImageHash:   h.ProfileImageHash,
		ThumbnailImageHash: h.ThumbnailImageHash,
	}
}

// ApplyProfile writes the shared profile value back into the row.
func (h *HostedIdentity) ApplyProfile(p *profile.Info, signature []byte) {
	h.Version = p.Version
	h.Name = p.Name
	h.Type = p.Type
	h.ExtraData = p.ExtraData
	h.Latitude = p.Location.Latitude
	h.Longitude = p.Location.Longitude
	h.ProfileImageHash = p.ProfileImageHash
	h.ThumbnailImageHash = p.ThumbnailImageHash
	h.Signature = signature
}
