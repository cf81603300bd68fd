package domain

import "time"

// Category names are free-form tags; two categories may share a name.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
