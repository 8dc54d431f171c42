// Package users holds the persistent record of everyone who has ever
// written to the bot, keyed by phone identity.
package users

import (
	"fmt"
	"strings"
	"time"
)

// Level is a user's permission level. Levels are totally ordered;
// LevelBlocked is the soft-ban level (users are never deleted).
type Level int

const (
	LevelBlocked Level = iota
	LevelGuest
	LevelUser
	LevelModerator
	LevelAdmin
	LevelOwner
)

var levelNames = map[Level]string{
	LevelBlocked:   "blocked",
	LevelGuest:     "guest",
	LevelUser:      "user",
	LevelModerator: "moderator",
	LevelAdmin:     "admin",
	LevelOwner:     "owner",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "guest"
}

// ParseLevel maps a stored or user-supplied level name to its Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blocked":
		return LevelBlocked, nil
	case "guest":
		return LevelGuest, nil
	case "user":
		return LevelUser, nil
	case "moderator", "mod":
		return LevelModerator, nil
	case "admin":
		return LevelAdmin, nil
	case "owner":
		return LevelOwner, nil
	}
	return LevelGuest, fmt.Errorf("unknown permission level %q", s)
}

// Allows reports whether this level satisfies the given minimum.
// Owner passes every check by explicit rule, not by numeric comparison.
func (l Level) Allows(min Level) bool {
	if l == LevelOwner {
		return true
	}
	return l >= min
}

// User is one known identity. DisplayName stays empty until the user
// completes registration.
type User struct {
	Identity     string            `json:"identity"`
	DisplayName  string            `json:"display_name"`
	Level        Level             `json:"level"`
	Registered   bool              `json:"registered"`
	LastActivity time.Time         `json:"last_activity"`
	Prefs        map[string]string `json:"prefs,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Update carries a partial mutation; nil fields are left untouched.
type Update struct {
	DisplayName *string
	Level       *Level
	Registered  *bool
	Prefs       map[string]string
}
