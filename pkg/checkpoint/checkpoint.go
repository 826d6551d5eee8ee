package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"igharvest/pkg/logger"
)

const formatVersion = 1

// Cursor is the feed position of a job, written after every persisted page
type Cursor struct {
	JobID      int64     `json:"job_id"`
	Handle     string    `json:"handle"`
	UpstreamID string    `json:"upstream_id"`
	MaxID      string    `json:"max_id"`
	Page       int       `json:"page"`
	ItemsSeen  int       `json:"items_seen"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int       `json:"version"`
}

// Store persists feed cursors keyed by job
type Store interface {
	Load(jobID int64) (*Cursor, error)
	Save(c *Cursor) error
	Delete(jobID int64) error
}

// FileStore keeps one JSON file per job in a directory
type FileStore struct {
	dir    string
	logger logger.Logger
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileStore{dir: dir, logger: log}, nil
}

func (s *FileStore) path(jobID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("job-%d.cursor.json", jobID))
}

// Load returns nil, nil when no cursor exists for the job
func (s *FileStore) Load(jobID int64) (*Cursor, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if c.Version != formatVersion {
		s.logger.WarnWithFields("Ignoring checkpoint with unknown version", map[string]interface{}{
			"job_id":  jobID,
			"version": c.Version,
		})
		return nil, nil
	}

	s.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"job_id": jobID,
		"page":   c.Page,
		"max_id": c.MaxID,
	})
	return &c, nil
}

// Save writes the cursor atomically through a temp file and rename
func (s *FileStore) Save(c *Cursor) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Version = formatVersion

	target := s.path(c.JobID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"job_id": c.JobID,
		"page":   c.Page,
		"max_id": c.MaxID,
	})
	return nil
}

// Delete removes the cursor; missing files are not an error
func (s *FileStore) Delete(jobID int64) error {
	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Nop discards cursors; used when checkpointing is disabled
type Nop struct{}

func (Nop) Load(int64) (*Cursor, error) { return nil, nil }
func (Nop) Save(*Cursor) error          { return nil }
func (Nop) Delete(int64) error          { return nil }
