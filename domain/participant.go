// Package domain contains core concepts of the chat system.
// This file defines Participant identities as seen by the realtime core.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is the immutable pair bound to a connection once its credential
// has been verified.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Valid reports whether the identity can own a connection.
func (i Identity) Valid() bool {
	return i.UserID != ""
}

// Person is a registered user as listed by the people directory.
type Person struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}
