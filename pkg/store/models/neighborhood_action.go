package models

import "time"

// ActionType enumerates the replication actions of the neighborhood queue.
// Values below FollowerActionThreshold target neighbors, values at or above
// it target followers; within one target, lower values dispatch first.
type ActionType int

const (
	ActionAddNeighbor             ActionType = 1
	ActionRemoveNeighbor          ActionType = 2
	ActionStopNeighborhoodUpdates ActionType = 3

	ActionAddProfile               ActionType = 10
	ActionRefreshProfiles          ActionType = 11
	ActionChangeProfile            ActionType = 12
	ActionRemoveProfile            ActionType = 13
	ActionInitializationInProgress ActionType = 14
)

// FollowerActionThreshold separates neighbor-direction from
// follower-direction action types.
const FollowerActionThreshold = 10

// TargetsFollower reports whether the action belongs to a follower-direction
// queue.
func (t ActionType) TargetsFollower() bool {
	return t >= FollowerActionThreshold
}

// String returns the action type name.
func (t ActionType) String() string {
	switch t {
	case ActionAddNeighbor:
		return "AddNeighbor"
	case ActionRemoveNeighbor:
		return "RemoveNeighbor"
	case ActionStopNeighborhoodUpdates:
		return "StopNeighborhoodUpdates"
	case ActionAddProfile:
		return "AddProfile"
	case ActionRefreshProfiles:
		return "RefreshProfiles"
	case ActionChangeProfile:
		return "ChangeProfile"
	case ActionRemoveProfile:
		return "RemoveProfile"
	case ActionInitializationInProgress:
		return "InitializationProcessInProgress"
	default:
		return "Unknown"
	}
}

// NeighborhoodAction is one pending replication operation. Actions targeting
// the same peer and direction form a FIFO ordered by ID; AdditionalData
// carries a typed JSON snapshot of everything the action needs at dispatch
// time, so replay never depends on the current database state.
type NeighborhoodAction struct {
	// ID is the monotonically increasing queue position.
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// ServerID is the network identifier of the target peer.
	ServerID []byte `gorm:"index:idx_action_target,priority:1;size:32;not null"`

	Type ActionType `gorm:"index:idx_action_target,priority:2;not null"`

	// TargetIdentityID is set for per-profile actions.
	TargetIdentityID []byte `gorm:"index:idx_action_target,priority:3;size:32"`

	Timestamp time.Time `gorm:"not null"`

	// ExecuteAfter defers dispatch; nil means eligible immediately.
	ExecuteAfter *time.Time `gorm:"index"`

	// AdditionalData is the canonical JSON snapshot of the action payload.
	AdditionalData string `gorm:"type:text"`
}

// TableName returns the table name for NeighborhoodAction.
func (NeighborhoodAction) TableName() string {
	return "neighborhood_actions"
}
