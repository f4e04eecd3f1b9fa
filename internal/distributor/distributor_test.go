package distributor_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/amjad-AR/ChatApp/internal/directory"
	"github.com/amjad-AR/ChatApp/internal/distributor"
	"github.com/amjad-AR/ChatApp/internal/protocol"
	"github.com/amjad-AR/ChatApp/internal/registry"
	"github.com/amjad-AR/ChatApp/internal/router"
	"github.com/amjad-AR/ChatApp/internal/store"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeConn struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.New()} }

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Send(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message)
}

func (c *fakeConn) Close(err error) {}

// receivedMessages decodes every message:new delivery the connection saw.
func (c *fakeConn) receivedMessages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []protocol.Message
	for _, raw := range c.sent {
		var e protocol.Envelope
		if err := json.Unmarshal(raw, &e); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if e.Event != protocol.EventMessageNew {
			continue
		}
		var m protocol.Message
		if err := json.Unmarshal(e.Payload, &m); err != nil {
			t.Fatalf("bad message payload: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type fixture struct {
	registry    *registry.Registry
	distributor *distributor.Distributor
	store       *store.MemoryStore
	directory   *directory.MemoryDirectory
}

func newFixture(userIDs ...string) *fixture {
	logger := newTestLogger()
	reg := registry.New(logger)
	rt := router.New(logger, reg)
	st := store.NewMemoryStore()
	dir := directory.NewMemoryDirectory(userIDs...)
	return &fixture{
		registry:    reg,
		distributor: distributor.New(logger, st, dir, rt),
		store:       st,
		directory:   dir,
	}
}

func (f *fixture) announced(t *testing.T, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	if err := f.registry.Attach(conn, userID); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if _, err := f.registry.Announce(conn.ID(), userID); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	return conn
}

func textBody(s string) protocol.MessageBody {
	return protocol.MessageBody{Text: s}
}

func TestPublicMessageReachesAnnouncedUsersOnly(t *testing.T) {
	f := newFixture("A", "B", "C", "D")
	connA := f.announced(t, "A")
	connB := f.announced(t, "B")
	connC := f.announced(t, "C")
	// D exists but never announced a connection.

	msg, err := f.distributor.Submit(context.Background(), "A", protocol.SubmitPayload{
		Kind: protocol.KindPublic,
		Body: textBody("hi"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("persisted message must carry a store-assigned ID")
	}

	for name, conn := range map[string]*fakeConn{"A": connA, "B": connB, "C": connC} {
		got := conn.receivedMessages(t)
		if len(got) != 1 {
			t.Fatalf("user %s: expected exactly 1 message:new, got %d", name, len(got))
		}
		if got[0].Body.Text != "hi" {
			t.Errorf("user %s: expected text %q, got %q", name, "hi", got[0].Body.Text)
		}
	}
}

func TestPrivateMessageMultiDeviceFanout(t *testing.T) {
	f := newFixture("A", "B")
	devA1 := f.announced(t, "A")
	devA2 := f.announced(t, "A")
	devB := f.announced(t, "B")

	msg, err := f.distributor.Submit(context.Background(), "A", protocol.SubmitPayload{
		Kind:       protocol.KindPrivate,
		ReceiverID: "B",
		Body:       textBody("psst"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	total := 0
	for name, conn := range map[string]*fakeConn{"A1": devA1, "A2": devA2, "B": devB} {
		got := conn.receivedMessages(t)
		if len(got) != 1 {
			t.Fatalf("conn %s: expected exactly 1 delivery, got %d", name, len(got))
		}
		if got[0].ID != msg.ID {
			t.Errorf("conn %s: broadcast ID %q differs from persisted ID %q", name, got[0].ID, msg.ID)
		}
		total += len(got)
	}
	if total != 3 {
		t.Errorf("expected exactly 3 deliveries, got %d", total)
	}
}

func TestPrivateMessageToOfflineReceiverStillPersists(t *testing.T) {
	f := newFixture("A", "B")
	f.announced(t, "A")
	// B is known but offline.

	msg, err := f.distributor.Submit(context.Background(), "A", protocol.SubmitPayload{
		Kind:       protocol.KindPrivate,
		ReceiverID: "B",
		Body:       textBody("catch up later"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stored, err := f.store.Query(context.Background(), store.Filter{
		Kind:         protocol.KindPrivate,
		Participants: [2]string{"A", "B"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != msg.ID {
		t.Fatalf("expected the message to be durably queryable, got %v", stored)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture("A", "B")
	f.announced(t, "A")

	cases := []struct {
		name    string
		req     protocol.SubmitPayload
		wantErr error
	}{
		{
			name:    "empty body",
			req:     protocol.SubmitPayload{Kind: protocol.KindPublic, Body: textBody("   ")},
			wantErr: distributor.ErrEmptyMessage,
		},
		{
			name: "two active body cases",
			req: protocol.SubmitPayload{
				Kind: protocol.KindPublic,
				Body: protocol.MessageBody{Text: "x", ImageRef: "img-1"},
			},
			wantErr: distributor.ErrEmptyMessage,
		},
		{
			name:    "private without receiver",
			req:     protocol.SubmitPayload{Kind: protocol.KindPrivate, Body: textBody("x")},
			wantErr: distributor.ErrInvalidReceiver,
		},
		{
			name: "private to unknown receiver",
			req: protocol.SubmitPayload{
				Kind:       protocol.KindPrivate,
				ReceiverID: "stranger",
				Body:       textBody("x"),
			},
			wantErr: distributor.ErrInvalidReceiver,
		},
		{
			name: "private to self",
			req: protocol.SubmitPayload{
				Kind:       protocol.KindPrivate,
				ReceiverID: "A",
				Body:       textBody("x"),
			},
			wantErr: distributor.ErrSelfMessage,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.distributor.Submit(context.Background(), "A", tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Nothing may have been persisted by the rejected submissions.
	stored, _ := f.store.Query(context.Background(), store.Filter{Kind: protocol.KindPublic})
	if len(stored) != 0 {
		t.Errorf("rejected submissions must not persist, found %d messages", len(stored))
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, protocol.Message) (protocol.Message, error) {
	return protocol.Message{}, store.ErrUnavailable
}

func (failingStore) Query(context.Context, store.Filter) ([]protocol.Message, error) {
	return nil, store.ErrUnavailable
}

func TestStoreFailureBroadcastsNothing(t *testing.T) {
	logger := newTestLogger()
	reg := registry.New(logger)
	rt := router.New(logger, reg)
	dir := directory.NewMemoryDirectory("A", "B")
	d := distributor.New(logger, failingStore{}, dir, rt)

	conn := newFakeConn()
	reg.Attach(conn, "B")
	reg.Announce(conn.ID(), "B")

	_, err := d.Submit(context.Background(), "A", protocol.SubmitPayload{
		Kind:       protocol.KindPrivate,
		ReceiverID: "B",
		Body:       textBody("lost"),
	})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := len(conn.receivedMessages(t)); got != 0 {
		t.Errorf("no broadcast may happen when persistence fails, got %d", got)
	}
}
