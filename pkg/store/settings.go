package store

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store/models"
)

// ============================================
// SETTINGS OPERATIONS
// ============================================

// GetSetting returns the value of a setting, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// SetSetting upserts a setting value. Callers hold SettingsLock.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&setting).Error
}

// DeleteSetting removes a setting.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{}).Error
}

// ============================================
// TYPED SINGLETON HELPERS
// ============================================

// LoadOrCreateServerKeyPair returns the server's persisted key pair,
// generating and storing a fresh one on first start.
func (s *Store) LoadOrCreateServerKeyPair(ctx context.Context) (*identity.KeyPair, error) {
	release, err := s.locks.Acquire(SettingsLock)
	if err != nil {
		return nil, err
	}
	defer release()

	stored, err := s.GetSetting(ctx, models.SettingServerPrivateKey)
	if err != nil {
		return nil, err
	}
	if stored != "" {
		raw, err := identity.DecodeHex(stored)
		if err != nil {
			return nil, fmt.Errorf("corrupt server key setting: %w", err)
		}
		return identity.KeyPairFromPrivateKey(ed25519.PrivateKey(raw))
	}

	kp, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := s.SetSetting(ctx, models.SettingServerPrivateKey, identity.EncodeHex(kp.PrivateKey)); err != nil {
		return nil, err
	}
	return kp, nil
}

// NextIPNSSequence reads and increments the persisted IPNS sequence number
// under SettingsLock. Lost increments are tolerated; regression is not, so
// the new value is written before it is returned.
func (s *Store) NextIPNSSequence(ctx context.Context) (uint64, error) {
	release, err := s.locks.Acquire(SettingsLock)
	if err != nil {
		return 0, err
	}
	defer release()

	stored, err := s.GetSetting(ctx, models.SettingIPNSSequence)
	if err != nil {
		return 0, err
	}
	var seq uint64
	if stored != "" {
		seq, err = strconv.ParseUint(stored, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt ipns sequence setting: %w", err)
		}
	}
	seq++
	if err := s.SetSetting(ctx, models.SettingIPNSSequence, strconv.FormatUint(seq, 10)); err != nil {
		return 0, err
	}
	return seq, nil
}
