package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// FileManager persists one checkpoint per task partition as a JSON
// file under <dir>/<taskName>/<partition>.json, where dir is the
// directory passed to NewFileManager,
// written atomically via a temp-file-then-rename so a crash mid-write
// can never leave a torn checkpoint behind.
type FileManager struct {
	mu  sync.Mutex
	dir string
}

// NewFileManager returns a FileManager rooted at dir, created if
// necessary.
func NewFileManager(dir string) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir %s: %w", dir, err)
	}
	return &FileManager{dir: dir}, nil
}

func (m *FileManager) path(key model.CheckpointKey) string {
	return filepath.Join(m.dir, key.TaskName, fmt.Sprintf("%d.json", key.Partition))
}

type wireCheckpoint map[string]model.Offset

// Write replaces the whole per-partition checkpoint file with cp. It
// does not merge with whatever was there before, so callers must pass
// the full set of offsets for every SSP the task owns on every call,
// not just the ones that changed since the last commit.
func (m *FileManager) Write(key model.CheckpointKey, cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	wire := make(wireCheckpoint, len(cp))
	for ssp, offset := range cp {
		wire[ssp.String()] = offset
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

func (m *FileManager) ReadLast(key model.CheckpointKey) (model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path(key))
	if os.IsNotExist(err) {
		return model.Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	var wire wireCheckpoint
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}

	cp := make(model.Checkpoint, len(wire))
	for sspStr, offset := range wire {
		ssp, err := parseSSP(sspStr)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: parse ssp %q: %w", sspStr, err)
		}
		cp[ssp] = offset
	}
	return cp, nil
}

var _ Manager = (*FileManager)(nil)
