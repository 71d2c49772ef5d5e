// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a local account created lazily on the first verified request from
// a new identity-provider subject.
type User struct {
	ID      string
	Subject string
	Name    string
	Email   string

	// PictureURL is the identity-provider picture captured at first sign-in.
	// It is the restore target when an uploaded profile image is removed.
	PictureURL string

	// ProfileURL is the currently served profile image URL.
	ProfileURL string

	// ImageKey is the blob-store key of the uploaded profile image,
	// empty when none is set.
	ImageKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}
