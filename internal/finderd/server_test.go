package finderd

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"finder/internal/model"
)

type fakeBackend struct {
	mu     sync.Mutex
	snap   *model.Snapshot
	status model.IndexStatus
	events []model.ChangeEvent
	err    error
}

func newFakeBackend(paths ...string) *fakeBackend {
	s := model.SnapshotFromPaths(paths)
	s.Version = 1
	return &fakeBackend{snap: s, status: model.IndexStatus{Kind: model.StatusIdle}}
}

func (b *fakeBackend) Snapshot() *model.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

func (b *fakeBackend) Status() model.IndexStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *fakeBackend) Submit(ev model.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBackend) Watching() bool { return true }

func (b *fakeBackend) submitted() []model.ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ChangeEvent(nil), b.events...)
}

func startTestServer(t *testing.T, b Backend) (*Server, string) {
	t.Helper()

	s := NewServer(Options{Listen: "127.0.0.1:0", Backend: b})
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	addr := waitAddr(t, s, time.Second)
	t.Cleanup(func() {
		_ = s.Close()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("server did not stop within 1s after Close")
		}
	})
	return s, addr
}

func waitAddr(t *testing.T, s *Server, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start listening in time")
	return ""
}

func sendRawRequest(t *testing.T, addr string, raw string) Response {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	if _, err := conn.Write([]byte(raw + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := ReadOneLine(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp
}

func TestServerPingAndVersion(t *testing.T) {
	_, addr := startTestServer(t, newFakeBackend())

	resp := sendRawRequest(t, addr, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if string(resp.ID) != "1" || resp.Error != nil || resp.Result != "pong" {
		t.Fatalf("ping resp=%+v", resp)
	}

	resp = sendRawRequest(t, addr, `{"jsonrpc":"2.0","id":"v","method":"version"}`)
	if s, ok := resp.Result.(string); !ok || s == "" {
		t.Fatalf("version result=%v", resp.Result)
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	_, addr := startTestServer(t, newFakeBackend())

	cases := []struct {
		raw  string
		code int
	}{
		{raw: `{not json`, code: codeParse},
		{raw: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, code: codeInvalidRequest},
		{raw: `{"jsonrpc":"2.0","id":1,"method":"nope"}`, code: codeMethodNotFound},
		{raw: `{"jsonrpc":"2.0","id":1,"method":"query","params":"bad"}`, code: codeInvalidParams},
		{raw: `{"jsonrpc":"2.0","id":1,"method":"query","params":{"q":"a","limit":-1}}`, code: codeInvalidParams},
		{raw: `{"jsonrpc":"2.0","id":1,"method":"index.remove","params":{}}`, code: codeInvalidParams},
		{raw: `{"jsonrpc":"2.0","id":1,"method":"index.remove","params":{"path":"relative/x"}}`, code: codeInvalidParams},
	}
	for _, c := range cases {
		resp := sendRawRequest(t, addr, c.raw)
		if resp.Error == nil || resp.Error.Code != c.code {
			t.Fatalf("%s: expected code %d, got %+v", c.raw, c.code, resp.Error)
		}
	}
}

func TestServer_NotificationGetsNoResponse(t *testing.T) {
	b := newFakeBackend()
	_, addr := startTestServer(t, b)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"index.rescan\"}\n{\"jsonrpc\":\"2.0\",\"id\":7,\"method\":\"ping\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := ReadOneLine(bufio.NewReader(conn))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(resp.ID) != "7" {
		t.Fatalf("expected the ping response first, got id=%s", resp.ID)
	}
	if got := b.submitted(); len(got) != 1 || got[0].Kind != model.EventReindex {
		t.Fatalf("expected one reindex event, got %+v", got)
	}
}

func TestServer_CloseDropsOpenConnections(t *testing.T) {
	s, addr := startTestServer(t, newFakeBackend())
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an idle connection")
	}
	if err := c.Ping(); err == nil {
		t.Fatal("expected ping on a closed server to fail")
	}
}

func TestReadOneLine_SkipsBlankAndAcceptsEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\n  \n{\"a\":1}\r\n{\"b\":2}"))
	first, err := ReadOneLine(r)
	if err != nil || string(first) != `{"a":1}` {
		t.Fatalf("first=%q err=%v", first, err)
	}
	second, err := ReadOneLine(r)
	if err != nil || string(second) != `{"b":2}` {
		t.Fatalf("second=%q err=%v", second, err)
	}
	if _, err := ReadOneLine(r); err == nil {
		t.Fatal("expected EOF")
	}
}

func TestHandlers_RemoveSubmitError(t *testing.T) {
	b := newFakeBackend()
	b.err = errors.New("stopped")
	h := NewHandlers(b, nil)
	if err := h.Remove(RemoveParams{Path: "/abs/x"}); err == nil {
		t.Fatal("expected submit error")
	}
}
