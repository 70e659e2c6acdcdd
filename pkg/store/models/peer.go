package models

import "time"

// PeerContact holds the shared surface of Neighbor and Follower rows: how to
// reach the peer and whether its pairing with this server is live.
type PeerContact struct {
	// NetworkID is SHA256 of the peer server's public key.
	NetworkID []byte `gorm:"uniqueIndex;size:32;not null"`

	IPAddress      string `gorm:"size:45;not null"`
	PrimaryPort    uint32 `gorm:"not null"`
	SrNeighborPort uint32 `gorm:"not null"`

	// Initialized turns true once the bulk profile transfer between this
	// server and the peer has completed in the relevant direction.
	Initialized bool `gorm:"not null;default:false"`

	// LastRefreshTime is advanced by each successful refresh; peers whose
	// refresh lease lapses are expired by the maintenance sweeper.
	LastRefreshTime time.Time `gorm:"index"`
}

// Neighbor is a peer whose profiles this server mirrors. The GPS position
// comes from the location service and feeds neighbor-aware search.
type Neighbor struct {
	ID uint `gorm:"primaryKey"`
	PeerContact

	Latitude  int32
	Longitude int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for Neighbor.
func (Neighbor) TableName() string {
	return "neighbors"
}

// Follower is a peer this server pushes hosted-profile updates to.
type Follower struct {
	ID uint `gorm:"primaryKey"`
	PeerContact

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for Follower.
func (Follower) TableName() string {
	return "followers"
}
