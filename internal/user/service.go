package user

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// VIP tiers, in ascending order of perks.
const (
	TierNone    = "none"
	TierBasic   = "basic"
	TierPlus    = "plus"
	TierPremium = "premium"
)

const subscriptionActive = "active"

const (
	tierCacheSize = 4096
	tierCacheTTL  = time.Minute
)

// User is the community member as stored by the website; this service only reads it.
type User struct {
	ID        int64   `gorm:"primaryKey"`
	DiscordID string  `gorm:"uniqueIndex;not null"`
	SteamID   *string `gorm:"type:varchar(32)"`
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

// HasSteamID reports whether the user linked a game identity.
func (u *User) HasSteamID() bool {
	return u.SteamID != nil && *u.SteamID != ""
}

type Subscription struct {
	ID        int64 `gorm:"primaryKey"`
	UserID    int64 `gorm:"not null;index"`
	Tier      string
	Status    string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (Subscription) TableName() string {
	return "subscriptions"
}

type Service struct {
	db    *gorm.DB
	tiers *tierCache
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, tiers: newTierCache(tierCacheSize, tierCacheTTL)}
}

// FindByDiscordID returns (nil, nil) when no user has the given Discord id.
func (s *Service) FindByDiscordID(ctx context.Context, discordID string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("discord_id = ?", discordID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// VIPTier resolves the tier of the user's active subscription, or TierNone.
func (s *Service) VIPTier(ctx context.Context, userID int64, now time.Time) (string, error) {
	if tier, ok := s.tiers.get(userID, now); ok {
		return tier, nil
	}

	tier, err := s.lookupTier(ctx, userID, now)
	if err != nil {
		return "", err
	}
	s.tiers.set(userID, tier, now)
	return tier, nil
}

func (s *Service) lookupTier(ctx context.Context, userID int64, now time.Time) (string, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, subscriptionActive).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("expires_at DESC NULLS FIRST").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TierNone, nil
	}
	if err != nil {
		return "", err
	}
	if sub.Tier == "" {
		return TierNone, nil
	}
	return sub.Tier, nil
}
