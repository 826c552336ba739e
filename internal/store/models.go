package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a draft does not exist.
var ErrNotFound = errors.New("draft not found")

// Draft is a comparison being edited in the builder. Content is the
// canonical document JSON; Title, Author and EIPs are denormalised from it
// for listing.
type Draft struct {
	ID          string
	Title       string
	Author      string
	EIPs        []int
	Content     []byte
	HeadCommit  string
	GistID      string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DraftSummary is a Draft without its content.
type DraftSummary struct {
	ID         string
	Title      string
	Author     string
	EIPs       []int
	HeadCommit string
	GistID     string
	UpdatedAt  time.Time
}
