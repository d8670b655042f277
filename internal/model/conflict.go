package model

import "time"

type ConflictKind string

const (
	// Two sources of the same type share a stable name and therefore a target.
	ConflictDuplicateTarget ConflictKind = "DUPLICATE_TARGET"
	// Sources of different types share a stable name.
	ConflictCrossType ConflictKind = "CROSS_TYPE_NAME"
)

type Conflict struct {
	Kind       ConflictKind `json:"kind"`
	Name       string       `json:"name"`
	Sources    []string     `json:"sources"`
	Targets    []string     `json:"targets,omitempty"`
	DetectedAt time.Time    `json:"detectedAt"`
}
