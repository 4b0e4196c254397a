package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxRibbitLength is the maximum number of characters in a ribbit.
const MaxRibbitLength = 140

type User struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:30;not null"`
	Email        string    `json:"email" gorm:"size:254;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// GravatarURL returns the 50px avatar image for the user's email.
func (u User) GravatarURL() string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(u.Email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?s=50", hex.EncodeToString(sum[:]))
}

// UserProfile holds the follow graph for a user. There is exactly one per user.
type UserProfile struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Follow is a directed edge: the follower profile follows the followed profile.
type Follow struct {
	FollowerProfileID uuid.UUID `json:"follower_profile_id" gorm:"primaryKey"`
	FollowedProfileID uuid.UUID `json:"followed_profile_id" gorm:"primaryKey;index"`
	CreatedAt         time.Time `json:"created_at"`
}

type Ribbit struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Content   string    `json:"content" gorm:"size:140;not null"`
	UserID    uuid.UUID `json:"user_id" gorm:"index;not null"`
	User      User      `json:"user" gorm:"foreignKey:UserID"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
