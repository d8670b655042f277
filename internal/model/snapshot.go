package model

import "time"

type Snapshot struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	Pinned     bool      `json:"pinned"`
}
