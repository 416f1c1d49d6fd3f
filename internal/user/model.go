package user

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the row behind the engine's user-profile store. Besides the
// credential fields it carries the personalisation hints
// (learning style, difficulty preference, interests) handed to the
// generative collaborator alongside retrieved memories.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string `gorm:"size:128;not null"`
	Role         Role   `gorm:"type:varchar(10);not null;default:'user'" json:"role"`

	LearningStyle        string `gorm:"size:32" json:"learningStyle,omitempty"`
	DifficultyPreference string `gorm:"size:32" json:"difficultyPreference,omitempty"`
	// Interests is stored comma-separated; use InterestList for the
	// split view.
	Interests string `gorm:"size:512" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MemoryOwnerID is the identifier this user's memories are filed
// under in the vector store. Derived from the primary key rather than
// stored, so a username change can never orphan a user's memories.
func (u *User) MemoryOwnerID() string {
	return fmt.Sprintf("user-%d", u.ID)
}

// InterestList splits the stored comma-separated interests, dropping
// empty segments.
func (u *User) InterestList() []string {
	if u.Interests == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(u.Interests, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinInterests is the inverse of InterestList, used when a handler
// accepts interests as a list.
func JoinInterests(interests []string) string {
	var kept []string
	for _, i := range interests {
		if p := strings.TrimSpace(i); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ",")
}

// Profile is the view handed to collaborators that need the
// personalisation hints and the memory owner id, but never the
// credentials.
type Profile struct {
	ID                   uint     `json:"id"`
	OwnerID              string   `json:"ownerId"`
	LearningStyle        string   `json:"learningStyle,omitempty"`
	DifficultyPreference string   `json:"difficultyPreference,omitempty"`
	Interests            []string `json:"interests,omitempty"`
}

// Profile projects the user onto its collaborator-facing view.
func (u *User) Profile() Profile {
	return Profile{
		ID:                   u.ID,
		OwnerID:              u.MemoryOwnerID(),
		LearningStyle:        u.LearningStyle,
		DifficultyPreference: u.DifficultyPreference,
		Interests:            u.InterestList(),
	}
}

// GetUser loads the profile view for id from the relational store.
func GetUser(db *gorm.DB, id uint) (Profile, error) {
	var u User
	if err := db.First(&u, id).Error; err != nil {
		return Profile{}, err
	}
	return u.Profile(), nil
}
