package models

import "time"

// Setting stores singleton key-value state: the server key pair, the last
// IPNS sequence number, the saved primary address.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Well-known setting keys.
const (
	SettingServerPrivateKey = "server_private_key"
	SettingIPNSSequence     = "ipns_sequence"
	SettingPrimaryAddress   = "primary_address"
	SettingCanObjectHash    = "can_object_hash"
)
