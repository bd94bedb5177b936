package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirerelay/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "history.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(from, to, body string) store.Record {
	return store.Record{Time: time.Now(), From: from, To: to, Body: body}
}

func TestAppendWritesOneLinePerRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("A", "B", "hello")))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "["))
	require.True(t, strings.HasSuffix(lines[0], "] A -> B: hello"), "line %q", lines[0])
}

func TestQueryFiltersByUnorderedPair(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("A", "B", "one")))
	require.NoError(t, s.Append(ctx, record("A", "C", "unrelated")))
	require.NoError(t, s.Append(ctx, record("B", "A", "two")))
	require.NoError(t, s.Append(ctx, record("AA", "B", "prefix clash")))
	require.NoError(t, s.Append(ctx, record("A", "B", "three")))

	got, err := s.Query(ctx, "A", "B")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"one", "two", "three"}, bodies(got))

	reversed, err := s.Query(ctx, "B", "A")
	require.NoError(t, err)
	require.Equal(t, bodies(got), bodies(reversed))

	ac, err := s.Query(ctx, "A", "C")
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, bodies(ac))

	none, err := s.Query(ctx, "B", "C")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestQueryBodiesMayContainArrows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("A", "B", "x -> y: z")))

	got, err := s.Query(ctx, "A", "B")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "x -> y: z", got[0].Body)

	// The body mentions x and y but the record is not between them.
	other, err := s.Query(ctx, "x", "y")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestQueryWithSeparatorsInIdentifiers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record("A", "B", ": hi")))
	require.NoError(t, s.Append(ctx, record("A", "B: ", "odd name")))

	got, err := s.Query(ctx, "A", "B: ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "B: ", got[0].To)
	require.Equal(t, "odd name", got[0].Body)

	got, err = s.Query(ctx, "B", "A")
	require.NoError(t, err)
	require.Equal(t, []string{": hi"}, bodies(got))
}

func TestConcurrentAppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			from := fmt.Sprintf("user%d", w)
			for i := range perWriter {
				if err := s.Append(ctx, record(from, "hub", fmt.Sprintf("msg-%d", i))); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 20 {
			recs, err := s.Query(ctx, "user0", "hub")
			if err != nil {
				t.Errorf("query: %v", err)
				return
			}
			for _, r := range recs {
				if !strings.HasPrefix(r.Body, "msg-") {
					t.Errorf("torn record %+v", r)
				}
			}
		}
	}()

	wg.Wait()
	<-done

	for w := range writers {
		recs, err := s.Query(ctx, fmt.Sprintf("user%d", w), "hub")
		require.NoError(t, err)
		require.Len(t, recs, perWriter)
		for i, r := range recs {
			require.Equal(t, fmt.Sprintf("msg-%d", i), r.Body, "per-writer order must be preserved")
		}
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	ctx := context.Background()

	s, err := Open(path, WithSync(true))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, record("A", "B", "before restart")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(ctx, record("B", "A", "after restart")))

	got, err := s.Query(ctx, "A", "B")
	require.NoError(t, err)
	require.Equal(t, []string{"before restart", "after restart"}, bodies(got))
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Append(context.Background(), record("A", "B", "x")), store.ErrClosed)
	_, err := s.Query(context.Background(), "A", "B")
	require.ErrorIs(t, err, store.ErrClosed)
	require.NoError(t, s.Close(), "second close is a no-op")
}

// flakyFile fails the next failures writes after passing partial bytes through.
type flakyFile struct {
	*os.File
	failures int
	partial  int
}

func (f *flakyFile) Write(p []byte) (int, error) {
	if f.failures == 0 {
		return f.File.Write(p)
	}
	f.failures--
	n, _ := f.File.Write(p[:min(f.partial, len(p))])
	return n, syscall.ENOSPC
}

func TestAppendRecoversAfterFailedWrite(t *testing.T) {
	cases := []struct {
		name    string
		partial int
	}{
		{name: "nothing written", partial: 0},
		{name: "partial line written", partial: 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()

			require.NoError(t, s.Append(ctx, record("A", "B", "one")))

			s.file = &flakyFile{File: s.file.(*os.File), failures: 2, partial: tc.partial}
			require.ErrorIs(t, s.Append(ctx, record("A", "B", "lost")), syscall.ENOSPC)
			require.ErrorIs(t, s.Append(ctx, record("B", "A", "lost too")), syscall.ENOSPC)

			require.NoError(t, s.Append(ctx, record("B", "A", "two")))
			require.NoError(t, s.Append(ctx, record("A", "B", "three")))

			got, err := s.Query(ctx, "A", "B")
			require.NoError(t, err)
			require.Equal(t, []string{"one", "two", "three"}, bodies(got))

			data, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
				if strings.HasSuffix(line, ": two") {
					require.True(t, strings.HasPrefix(line, "["), "record glued to a partial line: %q", line)
				}
			}
		})
	}
}

func bodies(recs []store.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Body)
	}
	return out
}
