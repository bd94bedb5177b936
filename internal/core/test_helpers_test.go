package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirerelay/internal/store"
	"github.com/vovakirdan/wirerelay/internal/store/logfile"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v: %+v", ev.Kind, ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(t *testing.T) (*Hub, *logfile.Store) {
	t.Helper()

	st, err := logfile.Open(filepath.Join(t.TempDir(), "history.log"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewHub(st, nil), st
}

func relay(t *testing.T, s *Session, from, to, body string) {
	t.Helper()

	err := s.Handle(context.Background(), &Command{
		Kind:    CommandRelay,
		Message: Message{From: from, To: to, Body: body},
	})
	if err != nil {
		t.Fatalf("relay %s -> %s: %v", from, to, err)
	}
}

// failingStore fails every operation, standing in for a broken disk.
type failingStore struct {
	mu      sync.Mutex
	appends int
}

var errDiskGone = errors.New("disk gone")

func (f *failingStore) Append(context.Context, store.Record) error {
	f.mu.Lock()
	f.appends++
	f.mu.Unlock()
	return errDiskGone
}

func (f *failingStore) Query(context.Context, string, string) ([]store.Record, error) {
	return nil, errDiskGone
}

func (f *failingStore) Close() error { return nil }
