package model

import "time"

type UserID uint64 // local numeric user id

type CreateUserParams struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Summary     string `json:"summary"`
	Password    string `json:"password"`
}

// User is a local account. Every URL field holds an absolute URL and is
// copied verbatim into the actor document.
type User struct {
	ID                        UserID    `json:"id"`
	FederationID              string    `json:"federationId"`
	Name                      string    `json:"name"`
	DisplayName               string    `json:"displayName"`
	Email                     string    `json:"email"`
	Summary                   string    `json:"summary"`
	URL                       string    `json:"url"`
	Inbox                     string    `json:"inbox"`
	Outbox                    string    `json:"outbox"`
	Following                 string    `json:"following"`
	Followers                 string    `json:"followers"`
	Featured                  string    `json:"featured"`
	FeaturedTags              string    `json:"featuredTags"`
	IconLocation              string    `json:"iconLocation"`
	ImageLocation             string    `json:"imageLocation"`
	Discoverable              bool      `json:"discoverable"`
	ManuallyApprovesFollowers bool      `json:"manuallyApprovesFollowers"`
	Indexable                 bool      `json:"indexable"`
	Published                 time.Time `json:"published"`
	Password                  string    `json:"-"`
}

// SigningKeyPair is owned by exactly one User.
type SigningKeyPair struct {
	UserID        UserID
	PublicKeyPem  string
	PrivateKeyPem string
}
