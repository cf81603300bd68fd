package queue

import "time"

// Routing keys on the feed exchange.
const (
	KeyUserRegistered  = "user.registered"
	KeyUserSignedIn    = "user.signedin"
	KeyPostCreated     = "post.created"
	KeyCategoryCreated = "category.created"
)

type UserRegistered struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	// VerifyCode is consumed by the mailer to build the confirmation link.
	VerifyCode string `json:"verify_code,omitempty"`
}

type UserSignedIn struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type PostCreated struct {
	PostID    string    `json:"post_id"`
	Category  string    `json:"category"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreated struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	CreatedBy  string `json:"created_by"`
}
