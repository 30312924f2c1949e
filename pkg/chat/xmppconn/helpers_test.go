// Copyright 2024-2026 Aiku AI

package xmppconn

import (
	"context"
	"encoding/xml"
	"strings"
	"sync"
	"testing"

	"github.com/aiku/xmppchat/pkg/chat"
	"github.com/rs/zerolog"
	"mellium.im/xmlstream"
)

var alice = chat.MakeUserIdentity("alice", "example.com", "desk")

const lobby = chat.RoomID("lobby@conference.example.com")

// recordingWriter serializes every outbound stanza to a string.
type recordingWriter struct {
	mu  sync.Mutex
	out []string
	err error
}

func (w *recordingWriter) Send(_ context.Context, r xml.TokenReader) error {
	if w.err != nil {
		return w.err
	}
	var sb strings.Builder
	e := xml.NewEncoder(&sb)
	if _, err := xmlstream.Copy(e, r); err != nil {
		return err
	}
	if err := e.Flush(); err != nil {
		return err
	}
	w.mu.Lock()
	w.out = append(w.out, sb.String())
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) Encode(_ context.Context, v any) error {
	if w.err != nil {
		return w.err
	}
	raw, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.out = append(w.out, string(raw))
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) sent() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.out...)
}

func (w *recordingWriter) last(t *testing.T) string {
	t.Helper()
	out := w.sent()
	if len(out) == 0 {
		t.Fatal("nothing was sent")
	}
	return out[len(out)-1]
}

// newLoggedInConn returns a Conn that writes to a recordingWriter instead
// of a network session.
func newLoggedInConn(opts Options) (*Conn, *recordingWriter) {
	c := New(alice, opts, zerolog.Nop())
	w := &recordingWriter{}
	c.out = w
	c.status = chat.LoginStatusLoggedIn
	return c, w
}

// feed dispatches one raw stanza.
func feed(t *testing.T, c *Conn, raw string) {
	t.Helper()
	d := xml.NewDecoder(strings.NewReader(raw))
	tok, err := d.Token()
	if err != nil {
		t.Fatalf("bad test stanza: %v", err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		t.Fatalf("bad test stanza: first token is %T", tok)
	}
	if err := c.dispatch(d, &start); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("%s\ndoes not contain %s", got, want)
		}
	}
}

// pendingID returns the id of the single outstanding IQ.
func pendingID(t *testing.T, c *Conn) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) != 1 {
		t.Fatalf("pending requests: got %d, want 1", len(c.pending))
	}
	for id := range c.pending {
		return id
	}
	return ""
}
