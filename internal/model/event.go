package model

import "time"

type EventType string

const (
	EventCreate EventType = "CREATED"
	EventModify EventType = "MODIFIED"
	EventDelete EventType = "DELETED"
)

type FileEvent struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}
