package junksite

import (
	"fmt"
	"time"
)

// Post is a blog article. Image is nil when the post has none.
type Post struct {
	ID       int64
	Title    string
	Excerpt  string
	Content  string
	Category string
	Tags     []string
	Image    *PostImage
	HasImage bool // set on listings, which never load image bytes
	Date     time.Time
}

// PostImage is the single image a post may carry.
type PostImage struct {
	Data        []byte
	ContentType string
}

// Subscriber is a newsletter signup.
type Subscriber struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContactSubmission is a message sent through the contact form.
type ContactSubmission struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidationError reports input that the store refuses to persist.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
