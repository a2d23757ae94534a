package core

import "github.com/google/uuid"

// ResourceID identifies a GPU object for logs and debug labels.
type ResourceID = uuid.UUID

func NewResourceID() ResourceID {
	return uuid.New()
}

// Resource is anything the renderer can name in a debug label.
type Resource interface {
	ID() ResourceID
	Label() string
}

// ShortID is the first uuid group, enough to tell objects apart in a log line.
func ShortID(id ResourceID) string {
	return id.String()[:8]
}
