// Package server exposes a bounded recency cache over a line-oriented TCP
// protocol and keeps a journal so the cache survives restarts.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recachelabs/recache/internal/journal"
	"github.com/recachelabs/recache/pkg/cache"
)

var ErrServerClosed = errors.New("recache: Server closed")

type Operation string

func (op Operation) IsValid() bool {
	switch op {
	case PUT, GET, DELETE, STATS:
		return true
	default:
		return false
	}
}

const (
	PUT    Operation = "PUT"
	GET    Operation = "GET"
	DELETE Operation = "DELETE"
	STATS  Operation = "STATS"
)

const (
	KEY_HEADER    = "Key"
	LENGTH_HEADER = "Length"
)

// Response status lines. Replies are framed like requests: a status line,
// a Length header, a blank line and the body.
const (
	StatusOK       = "OK"
	StatusNotFound = "NOTFOUND"
	StatusError    = "ERROR"
)

// recordMaxSize caps a single key+value pair at 64KB.
const recordMaxSize = 1 << 16

const (
	recacheDir      = ".recache"
	journalFileName = "journal.log"

	defaultCapacity = 1024

	// The journal is rewritten from the live cache once it holds this many
	// records and at least compactFactor records per cached entry. Evicted
	// and deleted keys stop costing replay time after that.
	compactMinRecords = 1 << 12
	compactFactor     = 4
)

type Options struct {
	// Capacity is the maximum number of cached entries. Zero means
	// defaultCapacity; a negative value is rejected by the cache.
	Capacity int
	// JournalPath overrides the default journal location under the
	// user's home directory.
	JournalPath string
	Logger      *slog.Logger
}

// Server owns the cache, its journal and the TCP listener. Writes go to
// the journal before the cache so a crash never acknowledges a lost write.
type Server struct {
	address    string
	listener   net.Listener
	inShutdown atomic.Bool // true when server is in shutdown
	cache      *cache.LRUCache[string, []byte]
	journal    *journal.Journal
	// mu serializes journal appends with cache mutations so replay order
	// matches the order writes were applied. It also guards the listener.
	mu     sync.Mutex
	logger *slog.Logger
}

func New(address string, options Options) (*Server, error) {
	capacity := options.Capacity
	if capacity == 0 {
		capacity = defaultCapacity
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	journalPath := options.JournalPath
	if journalPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		journalPath = filepath.Join(homeDir, recacheDir, journalFileName)
	}

	c, err := cache.New(capacity, cache.WithEvictCallback(func(key string, value []byte) {
		logger.Debug("Evicted entry", "key", key)
	}))
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(journalPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		address: address,
		cache:   c,
		journal: j,
		logger:  logger,
	}, nil
}

// Start replays the journal into the cache and then serves connections
// until Stop is called. It returns ErrServerClosed on a clean shutdown.
func (s *Server) Start() error {
	if err := s.replayJournal(); err != nil {
		return fmt.Errorf("failed to recover journal records: %w", err)
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if s.shuttingDown() {
			return ErrServerClosed
		}
		if err != nil {
			s.logger.Error("Error accepting: ", "error", err)
			continue
		}

		go func(c net.Conn) {
			defer c.Close()
			s.logger.Debug("Handling client", "Addr", c.RemoteAddr())
			s.handleConnection(c)
		}(conn)
	}
}

// Addr returns the address the server is listening on, or nil before
// Start has bound the listener.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and the journal. In-flight connections are not
// waited for; their writes either reached the journal or were never
// acknowledged.
func (s *Server) Stop() error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close() // stop accepting new connections
	}
	s.mu.Unlock()
	return s.journal.Close()
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

// replayJournal rebuilds the cache from the journal. Records are applied
// in append order, which restores the recency order as well: the last
// written key comes back as the most recently used.
func (s *Server) replayJournal() error {
	records, err := s.journal.ReadAll()
	if err != nil {
		return err
	}

	if l := len(records); l > 0 {
		start := time.Now()
		s.logger.Info("Recovering journal records", "record_count", l)
		for _, record := range records {
			switch record.Op {
			case journal.OpPut:
				s.cache.Put(record.Key, record.Value)
			case journal.OpDelete:
				s.cache.Delete(record.Key)
			default:
				s.logger.Warn("Skipping unknown journal record", "op", record.Op, "key", record.Key)
			}
		}
		s.logger.Info("Journal recovery complete", "cache_len", s.cache.Len(), "time", time.Since(start).String())
	} else {
		s.logger.Info("No journal records to recover")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactIfNeededLocked()
}

// Put journals and caches a key-value pair.
func (s *Server) Put(key string, value []byte) error {
	if len(key)+len(value) > recordMaxSize {
		return fmt.Errorf("record size exceeds maximum limit of %d bytes", recordMaxSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.journal.Append(journal.Record{
		Op:    journal.OpPut,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return err
	}
	s.cache.Put(key, value)
	return s.compactIfNeededLocked()
}

// Get reads a key from the cache, promoting it on a hit.
func (s *Server) Get(key string) ([]byte, bool) {
	return s.cache.Get(key)
}

// Delete journals a tombstone and removes the key from the cache.
func (s *Server) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.journal.Append(journal.Record{
		Op:  journal.OpDelete,
		Key: key,
	})
	if err != nil {
		return err
	}
	s.cache.Delete(key)
	return s.compactIfNeededLocked()
}

// Stats returns the cache counters alongside its current size and capacity.
// Counters and length come from one snapshot so they describe the same
// moment; capacity is fixed at construction.
func (s *Server) Stats() (stats cache.Stats, length, capacity int) {
	stats, length = s.cache.Snapshot()
	return stats, length, s.cache.Capacity()
}

// compactIfNeededLocked rewrites the journal from the live cache contents
// once replaying it would cost far more than the cache can hold. Records
// are written LRU first so replay ends with the MRU entry on top.
func (s *Server) compactIfNeededLocked() error {
	count := s.journal.Count()
	if count < compactMinRecords || count < compactFactor*s.cache.Len() {
		return nil
	}

	start := time.Now()
	keys := s.cache.Keys() // MRU -> LRU
	records := make([]journal.Record, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		value, found := s.cache.Peek(keys[i])
		if !found {
			continue
		}
		records = append(records, journal.Record{
			Op:    journal.OpPut,
			Key:   keys[i],
			Value: value,
		})
	}
	if err := s.journal.Rewrite(records); err != nil {
		return fmt.Errorf("failed to compact journal: %w", err)
	}
	s.logger.Info("Journal compacted", "old_record_count", count, "new_record_count", len(records), "time", time.Since(start).String())
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, _, err := r.ReadLine()
	if err != nil {
		return "", err
	}
	return string(line), nil
}

// readHeaders consumes "Name: value" lines up to the blank line that ends
// the header section.
func readHeaders(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header format: expected a header got '%s'", line)
		}
		headers[parts[0]] = parts[1]
	}
	return headers, nil
}

// writeResponse frames one reply: a status line, a Length header, a blank
// line and the body. The frame is built in one buffer and written in one
// call so concurrent connections never interleave partial replies.
func writeResponse(w io.Writer, status string, body []byte) {
	resp := make([]byte, 0, len(status)+len(body)+32)
	resp = append(resp, fmt.Sprintf("%s\n%s: %d\n\n", status, LENGTH_HEADER, len(body))...)
	resp = append(resp, body...)
	w.Write(resp)
}

// handleConnection serves requests on conn until the peer disconnects or
// sends a malformed request. Requests look like:
//
//	PUT\nKey: k\nLength: 5\n\nhello
//	GET\nKey: k\n\n
//	STATS\n\n
//
// Replies carry the same framing with a status line in place of the
// operation, so the body length is always known to the reader:
//
//	OK\nLength: 5\n\nhello
//	NOTFOUND\nLength: 0\n\n
func (s *Server) handleConnection(conn io.ReadWriteCloser) {
	reader := bufio.NewReader(conn)
	for {
		op, err := readLine(reader)
		if err != nil {
			if err == io.EOF {
				return
			}
			writeResponse(conn, StatusError, []byte(err.Error()))
			return
		}
		if op == "" {
			writeResponse(conn, StatusError, []byte("missing operation"))
			return
		}
		operation := Operation(op)
		if !operation.IsValid() {
			writeResponse(conn, StatusError, []byte(fmt.Sprintf("invalid operation '%s'", op)))
			return
		}

		headers, err := readHeaders(reader)
		if err != nil {
			writeResponse(conn, StatusError, []byte(err.Error()))
			return
		}

		key := headers[KEY_HEADER]
		if operation != STATS && key == "" {
			writeResponse(conn, StatusError, []byte(fmt.Sprintf("missing %s header", KEY_HEADER)))
			return
		}

		// Only PUT carries a body, announced by the Length header.
		var value []byte
		if operation == PUT {
			length, ok := headers[LENGTH_HEADER]
			if !ok {
				writeResponse(conn, StatusError, []byte(fmt.Sprintf("missing %s header", LENGTH_HEADER)))
				return
			}
			valueLen, err := strconv.Atoi(length)
			if err != nil || valueLen < 0 {
				writeResponse(conn, StatusError, []byte(fmt.Sprintf("invalid %s header '%s'", LENGTH_HEADER, length)))
				return
			}
			// Bound the allocation before trusting the header; Put would
			// reject the record anyway, but only after the bytes were read.
			if valueLen > recordMaxSize {
				writeResponse(conn, StatusError, []byte(fmt.Sprintf("%s header %d exceeds maximum record size of %d bytes", LENGTH_HEADER, valueLen, recordMaxSize)))
				return
			}
			value = make([]byte, valueLen)
			if _, err := io.ReadFull(reader, value); err != nil {
				writeResponse(conn, StatusError, []byte(fmt.Sprintf("reading value: %s", err.Error())))
				return
			}
		}

		s.handleOperation(conn, operation, key, value)
	}
}

func (s *Server) handleOperation(conn io.Writer, operation Operation, key string, value []byte) {
	var err error
	switch operation {
	case PUT:
		err = s.Put(key, value)
		if err == nil {
			writeResponse(conn, StatusOK, []byte(fmt.Sprintf("key '%s' updated", key)))
		}

	case GET:
		v, found := s.Get(key)
		if !found {
			writeResponse(conn, StatusNotFound, nil)
		} else {
			writeResponse(conn, StatusOK, v)
		}
		return

	case DELETE:
		err = s.Delete(key)
		if err == nil {
			writeResponse(conn, StatusOK, []byte("key deleted"))
			return
		}

	case STATS:
		stats, length, capacity := s.Stats()
		writeResponse(conn, StatusOK, []byte(fmt.Sprintf("len=%d capacity=%d hits=%d misses=%d evictions=%d",
			length, capacity, stats.Hits, stats.Misses, stats.Evictions)))
		return

	default:
		err = fmt.Errorf("unknown operation: %s", operation)
	}

	if err != nil {
		writeResponse(conn, StatusError, []byte(err.Error()))
	}
}
