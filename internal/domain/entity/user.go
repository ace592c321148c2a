package entity

import (
	"time"
)

const (
	OnlineStatusOnline  = "online"
	OnlineStatusOffline = "offline"

	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"

	RoleAdmin = "admin"
)

// User is the account directory's view of a user. Accounts are managed by the
// platform's user service; the chat core only reads them and writes presence.
type User struct {
	ID          string `json:"id" firestore:"id"`
	Email       string `json:"email,omitempty" firestore:"email"`
	Username    string `json:"username" firestore:"username"`
	DisplayName string `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	Role        string `json:"role" firestore:"role"`
	Status      string `json:"status" firestore:"status"`

	AvatarURL    string    `json:"avatarUrl,omitempty" firestore:"avatarURL,omitempty"`
	LastSeen     time.Time `json:"lastSeen" firestore:"lastSeen"`
	OnlineStatus string    `json:"onlineStatus" firestore:"onlineStatus"`

	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}
