package database

import "time"

// Memory is a user owned collection of photos
type Memory struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Photo is a processed image belonging to a memory. Rank orders photos within their memory.
type Photo struct {
	ID          string    `json:"id"`
	MemoryID    string    `json:"memoryId"`
	UserID      string    `json:"userId"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Rank        string    `json:"rank"`
	CreatedAt   time.Time `json:"createdAt"`
}
