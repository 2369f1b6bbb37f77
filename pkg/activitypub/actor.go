// Package activitypub holds the actor document shapes exchanged between
// servers, fetches remote actors and decides whether a served key can be
// trusted.
package activitypub

const (
	ContentTypeActivityJSON = "application/activity+json"
	ActivityStreamsContext  = "https://www.w3.org/ns/activitystreams"
	SecurityContext         = "https://w3id.org/security/v1"
	PublishedFormat         = "2006-01-02 15:04:05"
	MainKeyFragment         = "#main-key"
)

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type Image struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// Person is the actor document this node serves for a local account.
type Person struct {
	Context                   []string      `json:"@context"`
	ID                        string        `json:"id"`
	Type                      string        `json:"type"`
	Following                 string        `json:"following"`
	Followers                 string        `json:"followers"`
	Inbox                     string        `json:"inbox"`
	Outbox                    string        `json:"outbox"`
	Featured                  string        `json:"featured"`
	FeaturedTags              string        `json:"featuredTags"`
	PreferredUsername         string        `json:"preferredUsername"`
	Name                      string        `json:"name"`
	Summary                   string        `json:"summary,omitempty"`
	URL                       string        `json:"url"`
	ManuallyApprovesFollowers bool          `json:"manuallyApprovesFollowers"`
	Discoverable              bool          `json:"discoverable"`
	Indexable                 bool          `json:"indexable"`
	Published                 string        `json:"published"`
	Memorial                  bool          `json:"memorial"`
	PublicKey                 PublicKey     `json:"publicKey"`
	Tag                       []interface{} `json:"tag"`
	Attachment                []interface{} `json:"attachment"`
	Icon                      Image         `json:"icon"`
	Image                     Image         `json:"image"`
}

// RemoteActor is the subset of a fetched actor document the federation layer
// relies on. It is a value produced per fetch and owns no state.
type RemoteActor struct {
	ActorURL          string    `json:"id"`
	Kind              string    `json:"type"`
	InboxURL          string    `json:"inbox"`
	OutboxURL         string    `json:"outbox"`
	FollowersURL      string    `json:"followers"`
	FollowingURL      string    `json:"following"`
	PublicKey         PublicKey `json:"publicKey"`
	DisplayName       string    `json:"name"`
	PreferredUsername string    `json:"preferredUsername"`
	Published         string    `json:"published"`
}

// AsRemoteActor projects a locally built document onto the shape remote
// documents are parsed into, so both go through the same trust check.
func (p *Person) AsRemoteActor() *RemoteActor {
	return &RemoteActor{
		ActorURL:          p.ID,
		Kind:              p.Type,
		InboxURL:          p.Inbox,
		OutboxURL:         p.Outbox,
		FollowersURL:      p.Followers,
		FollowingURL:      p.Following,
		PublicKey:         p.PublicKey,
		DisplayName:       p.Name,
		PreferredUsername: p.PreferredUsername,
		Published:         p.Published,
	}
}
