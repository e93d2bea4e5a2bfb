package store

import (
	"encoding/json"
	"errors"

	"github.com/samber/lo"

	"github.com/ghost-cover/ghostcover-bot/internal/domain"
)

// ErrNotStateDocument indicates an uploaded file that does not match the
// state schema.
var ErrNotStateDocument = errors.New("file is not a state document")

var knownTopLevelKeys = []string{"subscribers", "owners", "force", "users", "coupons", "known_chats", "auto_backup"}

// ParseDocument decodes an uploaded state document. Arbitrary JSON is
// rejected: the payload must be an object carrying at least one of the
// document's top-level keys.
func ParseDocument(data []byte) (*domain.Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrNotStateDocument
	}

	recognized := lo.Filter(lo.Keys(raw), func(key string, _ int) bool {
		return lo.Contains(knownTopLevelKeys, key)
	})
	if len(recognized) == 0 {
		return nil, ErrNotStateDocument
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ErrNotStateDocument
	}

	return &doc, nil
}
