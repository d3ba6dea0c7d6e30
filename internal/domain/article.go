package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Article is a tenant-owned knowledge base entry. Its content is the source of
// truth for the chunks derived from it.
type Article struct {
	ID          string
	OrgID       string
	Title       string
	Content     string
	Category    string
	IsPublished bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateArticle checks that an article can be indexed.
func ValidateArticle(a *Article) error {
	if a == nil {
		return NewValidationError("article cannot be nil")
	}
	if strings.TrimSpace(a.ID) == "" {
		return NewValidationError("article id is required")
	}
	if strings.TrimSpace(a.OrgID) == "" {
		return ErrMissingOrganization
	}
	if strings.TrimSpace(a.Title) == "" {
		return NewValidationError("article title is required")
	}
	if a.IsPublished && strings.TrimSpace(a.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Revision identifies the indexed fields of an article. Chunks built from one
// revision must not replace chunks of a later one.
func (a *Article) Revision() string {
	h := sha256.New()
	for _, field := range []string{a.Title, a.Category, a.Content} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
