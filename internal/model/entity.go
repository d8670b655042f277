package model

import (
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityUnknown   EntityType = ""
	EntityAgent     EntityType = "agent"
	EntityLifecycle EntityType = "lifecycle"
	EntityTool      EntityType = "tool"
	EntityLLM       EntityType = "llm"
)

var EntityTypes = []EntityType{EntityAgent, EntityLifecycle, EntityTool, EntityLLM}

// ParseEntityType accepts both the singular type name and the plural
// directory form ("agents", "tools", "llms").
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "agents":
		return EntityAgent, nil
	case "lifecycle", "lifecycles":
		return EntityLifecycle, nil
	case "tool", "tools":
		return EntityTool, nil
	case "llm", "llms", "model", "models":
		return EntityLLM, nil
	default:
		return EntityUnknown, fmt.Errorf("unknown entity type: %q", s)
	}
}

func (t EntityType) String() string {
	if t == EntityUnknown {
		return "unknown"
	}
	return string(t)
}

type SourceEntity struct {
	RelPath string
	Type    EntityType
	Name    string
	Content map[string]any
	// Raw is the file as read, before parsing.
	Raw []byte
}
