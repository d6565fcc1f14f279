// Package journal persists cache mutations to an append-only log so a
// server restart can rebuild the cache, recency order included.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Each record on disk is framed with a little-endian uint32 length prefix
// followed by the protobuf-encoded record bytes.
const framePrefixSize = 4

// Journal is an append-only log of cache mutations backed by a single file.
// All methods are safe for concurrent use.
type Journal struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	count int
}

// Open opens the journal file at path, creating it and any missing parent
// directories if needed. Existing records are preserved; new records are
// appended after them.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &Journal{
		file: file,
		path: path,
	}, nil
}

// Append writes one record to the end of the journal.
func (j *Journal) Append(record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.appendLocked(j.file, record); err != nil {
		return err
	}
	j.count++
	return nil
}

func (j *Journal) appendLocked(f *os.File, record Record) error {
	payload := marshal(record)
	frame := make([]byte, framePrefixSize, framePrefixSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	// One Write call per record so a crash can tear at most the last frame.
	if _, err := f.Write(frame); err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	return nil
}

// ReadAll returns every record in the journal in append order and leaves
// the write position at the end of the file. A torn final frame, left by a
// crash mid-append, is truncated away so later appends start from a clean
// record boundary.
func (j *Journal) ReadAll() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind journal: %w", err)
	}

	var records []Record
	var validOffset int64
	torn := false
	prefix := make([]byte, framePrefixSize)
	for {
		if _, err := io.ReadFull(j.file, prefix); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				torn = true
				break
			}
			return nil, fmt.Errorf("failed to read journal frame prefix: %w", err)
		}
		payload := make([]byte, binary.LittleEndian.Uint32(prefix))
		if _, err := io.ReadFull(j.file, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				torn = true
				break
			}
			return nil, fmt.Errorf("failed to read journal record: %w", err)
		}
		record, err := unmarshal(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		validOffset += int64(framePrefixSize + len(payload))
	}

	if torn {
		if err := j.file.Truncate(validOffset); err != nil {
			return nil, fmt.Errorf("failed to truncate torn journal frame: %w", err)
		}
		if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
			return nil, fmt.Errorf("failed to seek past truncated journal: %w", err)
		}
	}

	j.count = len(records)
	return records, nil
}

// Count returns the number of records known to be in the journal. It is
// accurate once ReadAll has run against the backing file.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Rewrite atomically replaces the journal contents with records. It writes
// to a temporary file and renames it over the old one, so a crash mid-rewrite
// leaves the previous journal intact.
func (j *Journal) Rewrite(records []Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tmpPath := j.path + ".rewrite"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create rewrite file: %w", err)
	}
	for _, record := range records {
		if err := j.appendLocked(tmp, record); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync rewrite file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close rewrite file: %w", err)
	}

	if err := os.Rename(tmpPath, j.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace journal: %w", err)
	}
	j.file.Close()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to reopen journal after rewrite: %w", err)
	}
	j.file = file
	j.count = len(records)
	return nil
}

// Close syncs and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.file.Sync()
	return j.file.Close()
}
