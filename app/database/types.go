package database

import (
	"time"
)

const (
	ItemKeyPrefix       = "item:"
	LastNotificationKey = "notification:last"
)

// MirroredItem is the durable record of one ingested link. ID is derived
// from the link; UUID is assigned once and never changes.
type MirroredItem struct {
	ID          string    `json:"id"`
	UUID        string    `json:"uuid"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"sourceUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	BodyHTML    string    `json:"bodyHtml"` // sanitized
	ContentHash string    `json:"contentHash,omitempty"`

	// Revision stays empty until the first successful publish.
	Revision  string `json:"revision,omitempty"`
	MirrorURL string `json:"mirrorUrl,omitempty"`
	StoreURL  string `json:"storeUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Published reports whether the item has reached the content store.
func (i *MirroredItem) Published() bool {
	return i.Revision != ""
}

// Notification is the single most recent publish, kept for polling clients.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

func ItemKey(id string) string {
	return ItemKeyPrefix + id
}
