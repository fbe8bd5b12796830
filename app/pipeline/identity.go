package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lysyi3m/feed-mirror/app/database"
)

// IdentityLength is the number of hex characters kept from the link digest.
const IdentityLength = 16

// ErrAlreadyProcessed marks an item that is skipped because an up to date
// record already exists. It is an outcome, not a failure.
var ErrAlreadyProcessed = errors.New("item already processed")

// Identity derives the deduplication key of a link.
func Identity(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])[:IdentityLength]
}

type Decision int

const (
	DecisionNew Decision = iota
	DecisionDuplicate
	DecisionReprocess
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionDuplicate:
		return "duplicate"
	case DecisionReprocess:
		return "reprocess"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

type Deduplicator struct {
	items database.ItemRepository
}

func NewDeduplicator(items database.ItemRepository) *Deduplicator {
	return &Deduplicator{items: items}
}

// Decide looks up the record for link and returns the record the pipeline
// should work on. A new record gets a fresh uuid; a record being reprocessed
// keeps its own.
func (d *Deduplicator) Decide(ctx context.Context, link, title string) (Decision, *database.MirroredItem, error) {
	id := Identity(link)

	existing, err := d.items.GetItem(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	if existing == nil {
		return DecisionNew, &database.MirroredItem{ID: id, UUID: uuid.NewString()}, nil
	}

	// Incomplete records were ingested but never made it to the store.
	if existing.UUID == "" || !existing.Published() {
		if existing.UUID == "" {
			existing.UUID = uuid.NewString()
		}
		return DecisionReprocess, existing, nil
	}

	if existing.SourceURL == link || existing.Title == title {
		return DecisionDuplicate, existing, nil
	}
	return DecisionReprocess, existing, nil
}
