package logfile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/store"
)

// maxLineBytes bounds a single history line on read.
const maxLineBytes = 1 << 20

// appendFile is the write side of the log. *os.File satisfies it.
type appendFile interface {
	io.Writer
	Sync() error
	Close() error
}

// Store implements store.HistoryStore on a single append-only text file.
// One mutex serializes appends and scans, so a query never sees a line that
// is still being written.
type Store struct {
	path string
	sync bool
	log  *zerolog.Logger

	mu   sync.Mutex
	file appendFile
	// torn is set when a failed write left the log without a trailing newline.
	torn   bool
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithSync makes every append fsync the file after flushing.
func WithSync(enabled bool) Option {
	return func(s *Store) { s.sync = enabled }
}

// WithLogger sets the logger used for scan diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

// Open opens (creating if needed) the history log at path in append mode.
func Open(path string, opts ...Option) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history log: %w", err)
	}

	nop := zerolog.Nop()
	s := &Store{
		path: path,
		log:  &nop,
		file: f,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Append writes rec as one line with a single write call. A failed write
// does not poison later appends: if it left a partial line behind, the next
// append terminates it first so the partial line is skipped by Query.
func (s *Store) Append(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	line := rec.Line() + "\n"
	if s.torn {
		line = "\n" + line
	}
	n, err := io.WriteString(s.file, line)
	if n > 0 {
		s.torn = line[n-1] != '\n'
	}
	if err != nil {
		if s.torn {
			s.log.Warn().Err(err).Int("written", n).Msg("partial history line written")
		}
		return fmt.Errorf("write history line: %w", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync history log: %w", err)
		}
	}
	return nil
}

// Query scans the whole log with a fresh read handle and returns the records
// exchanged between a and b in file order.
func (s *Store) Query(ctx context.Context, a, b string) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open history log for read: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var records []store.Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, ok := store.ParseLine(scanner.Text())
		if !ok || !rec.Between(a, b) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan history log at line %d: %w", lineNo+1, err)
	}

	s.log.Debug().Str("a", a).Str("b", b).Int("matches", len(records)).Int("lines", lineNo).Msg("history scanned")
	return records, nil
}

// Close closes the file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close history log: %w", err)
	}
	return nil
}
