package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SnapshotData is one point-in-time export of the relay bindings.
type SnapshotData struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Accounts  map[string]interface{} `json:"accounts,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Storage defines where snapshots live.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

const snapshotPrefix = "snapshot-"

// SnapshotService serializes and persists snapshots.
type SnapshotService struct {
	storage Storage
	version string
}

func NewSnapshotService(storage Storage, version string) *SnapshotService {
	return &SnapshotService{
		storage: storage,
		version: version,
	}
}

// CreateSnapshot writes the data as a timestamped JSON document.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, data *SnapshotData) (string, error) {
	data.Version = s.version
	data.Timestamp = time.Now()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", snapshotPrefix, data.Timestamp.Format("20060102-150405"))
	if err := s.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	return name, nil
}

// LoadSnapshot reads one snapshot back.
func (s *SnapshotService) LoadSnapshot(ctx context.Context, name string) (*SnapshotData, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot SnapshotData
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// ListSnapshots lists available snapshot names.
func (s *SnapshotService) ListSnapshots(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, snapshotPrefix)
}

func (s *SnapshotService) DeleteSnapshot(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// SnapshotTime parses the timestamp out of a snapshot name.
func SnapshotTime(name string) (time.Time, error) {
	if len(name) < len(snapshotPrefix)+15 {
		return time.Time{}, fmt.Errorf("malformed snapshot name %q", name)
	}
	stamp := name[len(snapshotPrefix) : len(snapshotPrefix)+15]
	return time.Parse("20060102-150405", stamp)
}
