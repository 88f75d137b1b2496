package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// FileBackend keeps the record list and its metadata in two JSON files.
// The record file is a bare array so older readers keep working.
type FileBackend struct {
	dataPath string
	metaPath string
}

type fileMeta struct {
	LastUpdated time.Time `json:"lastUpdated"`
	RecordCount int       `json:"recordCount"`
}

// NewFileBackend creates a file backend
func NewFileBackend(dataPath, metaPath string) *FileBackend {
	return &FileBackend{dataPath: dataPath, metaPath: metaPath}
}

func (b *FileBackend) Name() string { return "file" }

// DataPath is the record file location
func (b *FileBackend) DataPath() string { return b.dataPath }

// Load reads both files. A missing metadata file falls back to the record
// file's modification time.
func (b *FileBackend) Load(ctx context.Context) (*contracts.Snapshot, error) {
	raw, err := os.ReadFile(b.dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.dataPath, err)
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.dataPath, err)
	}

	if snap.LastUpdated.IsZero() {
		meta, err := b.readMeta()
		switch {
		case err == nil:
			snap.LastUpdated = meta.LastUpdated
		case errors.Is(err, fs.ErrNotExist):
			info, statErr := os.Stat(b.dataPath)
			if statErr != nil {
				return nil, fmt.Errorf("stat %s: %w", b.dataPath, statErr)
			}
			snap.LastUpdated = info.ModTime().UTC()
		default:
			return nil, err
		}
	}

	return snap, nil
}

// decodeSnapshot accepts a bare record array or a full snapshot object
func decodeSnapshot(raw []byte) (*contracts.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	snap := &contracts.Snapshot{}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &snap.Records); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(trimmed, snap); err != nil {
		return nil, err
	}

	if snap.Records == nil {
		snap.Records = []contracts.CandidateRecord{}
	}
	return snap, nil
}

func (b *FileBackend) readMeta() (fileMeta, error) {
	var meta fileMeta
	raw, err := os.ReadFile(b.metaPath)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", b.metaPath, err)
	}
	return meta, nil
}

// Save writes the record file then the metadata file, each atomically.
// If the metadata write fails the previous record file is restored.
func (b *FileBackend) Save(ctx context.Context, snap *contracts.Snapshot) error {
	records := snap.Records
	if records == nil {
		records = []contracts.CandidateRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	meta, err := json.MarshalIndent(fileMeta{
		LastUpdated: snap.LastUpdated.UTC(),
		RecordCount: len(records),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	prev, prevErr := os.ReadFile(b.dataPath)
	if prevErr != nil && !errors.Is(prevErr, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", b.dataPath, prevErr)
	}

	if err := writeFileAtomic(b.dataPath, data); err != nil {
		return err
	}
	if err := writeFileAtomic(b.metaPath, meta); err != nil {
		// put the previous record file back so a failed save changes nothing
		if rerr := b.restoreData(prev, prevErr == nil); rerr != nil {
			return fmt.Errorf("%w (restore %s: %v)", err, b.dataPath, rerr)
		}
		return err
	}
	return nil
}

func (b *FileBackend) restoreData(prev []byte, existed bool) error {
	if !existed {
		return os.Remove(b.dataPath)
	}
	return writeFileAtomic(b.dataPath, prev)
}

// writeFileAtomic writes to a temp file in the same directory, syncs it,
// then renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
