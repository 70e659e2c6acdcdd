package models

import (
	"crypto/ed25519"
	"time"

	"github.com/iop-labs/profiled/pkg/profile"
)

// NeighborIdentity is one profile mirrored from a neighbor server. The
// uniqueness key is (HostingServerID, IdentityID): the same identity may be
// hosted on several neighbors during a migration window.
type NeighborIdentity struct {
	ID uint `gorm:"primaryKey"`

	// HostingServerID identifies the neighbor that owns the profile.
	HostingServerID []byte `gorm:"uniqueIndex:idx_neighbor_identity,priority:1;size:32;not null"`

	IdentityID []byte `gorm:"uniqueIndex:idx_neighbor_identity,priority:2;index;size:32;not null"`

	PublicKey []byte `gorm:"size:32;not null"`
	Version   []byte `gorm:"size:3"`

	Name      string `gorm:"size:64;index"`
	Type      string `gorm:"size:64;index"`
	ExtraData string `gorm:"size:200;index"`

	Latitude  int32 `gorm:"index:idx_neighbor_location,priority:1"`
	Longitude int32 `gorm:"index:idx_neighbor_location,priority:2"`

	ProfileImageHash   []byte `gorm:"size:32"`
	ThumbnailImageHash []byte `gorm:"size:32"`

	Signature []byte `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for NeighborIdentity.
func (NeighborIdentity) TableName() string {
	return "neighbor_identities"
}

// Profile converts the row to the shared profile value.
func (n *NeighborIdentity) Profile() *profile.Info {
	return &profile.Info{
		Version:            n.Version,
		PublicKey:          ed25519.PublicKey(n.PublicKey),
		Name:               n.Name,
		Type:               n.Type,
		ExtraData:          n.ExtraData,
		Location:           profile.Location{Latitude: n.Latitude, Longitude: n.Longitude},
		ProfileImageHash:   n.ProfileImageHash,
		ThumbnailImageHash: n.ThumbnailImageHash,
	}
}

// ApplyProfile writes the shared profile value back into the row.
func (n *NeighborIdentity) ApplyProfile(p *profile.Info, signature []byte) {
	n.PublicKey = p.PublicKey
	n.Version = p.Version
	n.Name = p.Name
	n.Type = p.Type
	n.ExtraData = p.ExtraData
	n.Latitude = p.Location.Latitude
	n.Longitude = p.Location.Longitude
	n.ProfileImageHash = p.ProfileImageHash
	n.ThumbnailImageHash = p.ThumbnailImageHash
	n.Signature = signature
}
