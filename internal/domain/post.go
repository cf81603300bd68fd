package domain

import "time"

const (
	// DefaultCategory is stamped on posts created without a category.
	DefaultCategory = "General"
	// AllCategories is the feed selector meaning "no category filter".
	AllCategories = "All"

	MaxPostLength = 500
)

type Post struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
