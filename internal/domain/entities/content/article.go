// Package content defines the article entities the engagement core reads
// from the external content system.
package content

import "time"

// UnsectionedLabel is reported for articles without a section or whose
// metadata could not be resolved.
const UnsectionedLabel = "uncategorized"

// ArticleMeta is the subset of article data the engagement core consumes.
type ArticleMeta struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Section     string    `json:"section"`
	PublishedAt time.Time `json:"publishedAt"`
}

// SectionLabel returns the section or UnsectionedLabel when blank.
func (a *ArticleMeta) SectionLabel() string {
	if a == nil || a.Section == "" {
		return UnsectionedLabel
	}
	return a.Section
}
