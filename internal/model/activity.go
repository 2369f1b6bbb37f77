package model

import "encoding/json"

type ActivityType string

const (
	ActivityTypeFollow ActivityType = "Follow"
	ActivityTypeAccept ActivityType = "Accept"
	ActivityTypeUndo   ActivityType = "Undo"
)

// Activity is the envelope of an inbound activity. Object is kept raw since
// it is either an id or an embedded activity depending on the type.
type Activity struct {
	Context interface{}     `json:"@context,omitempty"`
	ID      string          `json:"id"`
	Type    ActivityType    `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
}

// ObjectID returns the id of Object whether it was sent as a bare string or
// as an embedded object.
func (a *Activity) ObjectID() string {
	var id string
	if err := json.Unmarshal(a.Object, &id); err == nil {
		return id
	}
	var embedded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(a.Object, &embedded); err == nil {
		return embedded.ID
	}
	return ""
}

// Embedded decodes Object as a nested activity, as sent in Undo.
func (a *Activity) Embedded() (*Activity, error) {
	inner := &Activity{}
	if err := json.Unmarshal(a.Object, inner); err != nil {
		return nil, err
	}
	return inner, nil
}
