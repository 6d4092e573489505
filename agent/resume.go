package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentichat/agentichat-go/llm"
)

// resumeSchemaVersion is bumped whenever resumeFile's shape changes in a way
// that breaks backward compatibility. Blind trust-the-local-file
// deserialization is rejected deliberately: a file written by a newer,
// incompatible version is refused rather than blindly deserialized.
const resumeSchemaVersion = 1

// resumeFile is the on-disk shape of <workspace>/.agentichat/conversation.json.
type resumeFile struct {
	SchemaVersion int           `json:"schema_version"`
	SessionID     string        `json:"session_id"`
	BackendName   string        `json:"backend_name"`
	SavedAt       time.Time     `json:"saved_at"`
	Messages      []llm.Message `json:"messages"`
}

// ErrIncompatibleResume is returned by LoadResumeFile when the file's
// schema_version is newer than this binary understands.
var ErrIncompatibleResume = fmt.Errorf("conversation.json schema_version is newer than this build supports")

func resumeFilePath(dataDir string) string {
	return filepath.Join(dataDir, "conversation.json")
}

// SaveResumeFile writes the current transcript to conversation.json via a
// temp-file-plus-rename, the same atomic-write idiom config.Save and
// ModelMetadata.Save use.
func (a *Agent) SaveResumeFile(dataDir string) error {
	rf := resumeFile{
		SchemaVersion: resumeSchemaVersion,
		SessionID:     a.SessionID,
		BackendName:   a.BackendName,
		SavedAt:       time.Now(),
		Messages:      a.Messages,
	}
	payload, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal resume file: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := resumeFilePath(dataDir)

	tmp, err := os.CreateTemp(dataDir, ".conversation-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp resume file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp resume file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp resume file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadResumeFile reads conversation.json and, if its schema_version is not
// newer than what this build understands, replaces the in-memory transcript and session
// id. A missing file is reported via os.IsNotExist on the returned error; an
// incompatible version returns ErrIncompatibleResume rather than attempting a
// best-effort parse of an unknown shape.
func (a *Agent) LoadResumeFile(dataDir string) error {
	data, err := os.ReadFile(resumeFilePath(dataDir))
	if err != nil {
		return err
	}
	var rf resumeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse resume file: %w", err)
	}
	if rf.SchemaVersion > resumeSchemaVersion {
		return ErrIncompatibleResume
	}

	a.SessionID = rf.SessionID
	a.Messages = rf.Messages
	a.persistedCount = len(rf.Messages)
	return nil
}
