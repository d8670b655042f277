package model

import "time"

const SchemaVersion = "1.0"

type SyncAction string

const (
	ActionSync   SyncAction = "sync"
	ActionDelete SyncAction = "delete"
	ActionPrune  SyncAction = "prune"
)

type SyncRecord struct {
	Timestamp  time.Time  `json:"timestamp"`
	SourcePath string     `json:"sourcePath"`
	TargetPath string     `json:"targetPath"`
	Action     SyncAction `json:"action"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	RunID      string     `json:"runId,omitempty"`
}

// DocumentRecord ties a generated document to the source content that
// produced it. GeneratedAt is reused while the source hash is unchanged.
type DocumentRecord struct {
	TargetPath  string    `json:"targetPath"`
	SourceHash  string    `json:"sourceHash"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type SyncMetadata struct {
	LastSync      *time.Time                `json:"lastSync"`
	FileHashes    map[string]string         `json:"fileHashes"`
	SyncHistory   []SyncRecord              `json:"syncHistory"`
	Conflicts     []Conflict                `json:"conflicts"`
	SchemaVersion string                    `json:"schemaVersion"`
	Documents     map[string]DocumentRecord `json:"documents,omitempty"`
}

func NewSyncMetadata() *SyncMetadata {
	return &SyncMetadata{
		FileHashes:    make(map[string]string),
		SyncHistory:   []SyncRecord{},
		Conflicts:     []Conflict{},
		SchemaVersion: SchemaVersion,
		Documents:     make(map[string]DocumentRecord),
	}
}

// Normalize fills the nil collections left by decoding an older or
// hand-edited metadata file.
func (m *SyncMetadata) Normalize() {
	if m.FileHashes == nil {
		m.FileHashes = make(map[string]string)
	}
	if m.SyncHistory == nil {
		m.SyncHistory = []SyncRecord{}
	}
	if m.Conflicts == nil {
		m.Conflicts = []Conflict{}
	}
	if m.Documents == nil {
		m.Documents = make(map[string]DocumentRecord)
	}
	if m.SchemaVersion == "" {
		m.SchemaVersion = SchemaVersion
	}
}
