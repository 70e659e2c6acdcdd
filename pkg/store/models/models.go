// Package models defines the persisted entities of the profile server and
// their GORM schema: hosted identities, the neighbor-profile mirror, the
// neighbor and follower peer tables, the replication action queue, related
// identity cards and the settings singleton.
package models

// AllModels returns every model for GORM AutoMigrate.
// Order matters for foreign key creation (referenced tables first).
func AllModels() []any {
	return []any{
		&Setting{},
		&HostedIdentity{},
		&NeighborIdentity{},
		&Neighbor{},
		&Follower{},
		&NeighborhoodAction{},
		&RelatedIdentity{},
	}
}
