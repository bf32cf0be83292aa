package domain

import "context"

// UserProfile mirrors the public part of a profile kept by the auth/profile store
type UserProfile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

// Snapshot captures the profile as it is now, for embedding in notifications
func (u *UserProfile) Snapshot() *UserSnapshot {
	return &UserSnapshot{ID: u.ID, FullName: u.FullName, Avatar: u.Avatar}
}

// UserSnapshot is a denormalized copy of a profile taken at creation time.
// It is never refreshed, so names and avatars in old notifications go stale.
type UserSnapshot struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

// Post mirrors a listing from the record store
type Post struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Title   string `json:"title"`
}

// DirectoryRepository resolves users and posts referenced by connection requests
type DirectoryRepository interface {
	GetUserProfile(ctx context.Context, id string) (*UserProfile, error)
	GetPost(ctx context.Context, id string) (*Post, error)
}
