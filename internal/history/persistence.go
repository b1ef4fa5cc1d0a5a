package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SchemaVersion is the current history file schema version.
const SchemaVersion = 1

// ErrPersistenceClosed is returned when operations are attempted on a closed file.
var ErrPersistenceClosed = errors.New("history file is closed")

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	GlintHistoryVersion int   `json:"glint_history_version"`
	CreatedAt           int64 `json:"created_at"`
}

// JSONLFile stores history entries one JSON object per line.
type JSONLFile struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// OpenJSONL opens (creating if needed) a history file.
func OpenJSONL(path string) (*JSONLFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	p := &JSONLFile{path: path, file: file}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}
	return p, nil
}

// Path returns the file path.
func (p *JSONLFile) Path() string {
	return p.path
}

func (p *JSONLFile) writeHeader() error {
	data, err := json.Marshal(schemaHeader{
		GlintHistoryVersion: SchemaVersion,
		CreatedAt:           time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = p.file.Write(append(data, '\n'))
	return err
}

// Load reads all valid entries. Malformed lines are skipped.
func (p *JSONLFile) Load() ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return nil, ErrPersistenceClosed
	}
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", p.path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(p.file)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.GlintHistoryVersion > 0 {
				if header.GlintHistoryVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.GlintHistoryVersion, SchemaVersion)
				}
				continue
			}
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || !e.Valid() {
			continue
		}
		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("error reading file: %w", err)
	}
	if _, err := p.file.Seek(0, io.SeekEnd); err != nil {
		return entries, err
	}
	return entries, nil
}

// Append writes entries and syncs the file.
func (p *JSONLFile) Append(entries ...Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return ErrPersistenceClosed
	}
	if err := p.writeEntries(entries); err != nil {
		return err
	}
	return p.file.Sync()
}

// Rewrite replaces the file contents with entries, keeping a backup until
// the new file is written.
func (p *JSONLFile) Rewrite(entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return err
		}
		p.file = nil
	}

	backupPath := p.path + ".bak"
	if err := os.Rename(p.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		_ = os.Rename(backupPath, p.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	p.file = file

	if err := p.writeHeader(); err != nil {
		return err
	}
	if err := p.writeEntries(entries); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}

	_ = os.Remove(backupPath)
	return nil
}

func (p *JSONLFile) writeEntries(entries []Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := p.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the file handle.
func (p *JSONLFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}
