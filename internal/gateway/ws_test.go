package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/parley-ai/parley/internal/session"
)

// fakeLive records orchestrator calls and lets tests drive the emitter.
type fakeLive struct {
	mu        sync.Mutex
	attached  []string
	detached  []string
	audio     []any
	attachErr error
	audioErr  error
	emitter   session.Emitter
}

func (f *fakeLive) Attach(_ context.Context, sessionID string, e session.Emitter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, sessionID)
	f.emitter = e
	return nil
}

func (f *fakeLive) Detach(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, sessionID)
}

func (f *fakeLive) HandleAudio(sessionID string, raw any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	f.audio = append(f.audio, raw)
	return nil
}

func (f *fakeLive) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

func dialSocket(t *testing.T, live LiveSessions) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewSocketHandler(live))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeText(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readMessage reads the next text message and returns its decoded form.
func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

func TestSocket_JoinAndStatus(t *testing.T) {
	live := &fakeLive{}
	conn := dialSocket(t, live)

	writeText(t, conn, clientMessage{Type: "join-session", SessionID: "s1"})

	// The fake drives the emitter the way the orchestrator would on join.
	deadline := time.Now().Add(time.Second)
	for {
		live.mu.Lock()
		em := live.emitter
		live.mu.Unlock()
		if em != nil {
			em.EmitStatus(session.StatusEvent{Status: "joined", Message: "session joined"})
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("attach never reached the orchestrator")
		}
		time.Sleep(time.Millisecond)
	}

	msg := readMessage(t, conn)
	if msg["type"] != "session-status" || msg["status"] != "joined" {
		t.Errorf("message = %v, want session-status joined", msg)
	}
}

func TestSocket_JoinErrorForwarded(t *testing.T) {
	live := &fakeLive{attachErr: session.NewError(session.CodeSessionNotFound, "session not found: nope")}
	conn := dialSocket(t, live)

	writeText(t, conn, clientMessage{Type: "join-session", SessionID: "nope"})

	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["code"] != string(session.CodeSessionNotFound) {
		t.Errorf("message = %v, want error with SESSION_NOT_FOUND", msg)
	}
}

func TestSocket_JoinRequiresSessionID(t *testing.T) {
	conn := dialSocket(t, &fakeLive{})

	writeText(t, conn, clientMessage{Type: "join-session"})

	msg := readMessage(t, conn)
	if msg["type"] != "error" || msg["code"] != string(session.CodeInvalidSession) {
		t.Errorf("message = %v, want INVALID_SESSION error", msg)
	}
}

func TestSocket_BinaryAudioAfterJoin(t *testing.T) {
	live := &fakeLive{}
	conn := dialSocket(t, live)

	writeText(t, conn, clientMessage{Type: "join-session", SessionID: "s1"})

	frame := make([]byte, 640)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("binary write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for live.audioCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("binary frame never reached the orchestrator")
		}
		time.Sleep(time.Millisecond)
	}

	live.mu.Lock()
	defer live.mu.Unlock()
	raw, ok := live.audio[0].([]byte)
	if !ok || len(raw) != 640 {
		t.Errorf("audio[0] = %T len %v, want 640 raw bytes", live.audio[0], len(raw))
	}
}

func TestSocket_BinaryBeforeJoinIgnored(t *testing.T) {
	live := &fakeLive{}
	conn := dialSocket(t, live)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 320)); err != nil {
		t.Fatalf("binary write: %v", err)
	}
	writeText(t, conn, clientMessage{Type: "ping"})

	msg := readMessage(t, conn) // pong proves the frame was processed after the binary one
	if msg["type"] != "pong" {
		t.Fatalf("message = %v, want pong", msg)
	}
	if live.audioCount() != 0 {
		t.Errorf("audio frames = %d, want 0 before join", live.audioCount())
	}
}

func TestSocket_Base64AudioChunk(t *testing.T) {
	live := &fakeLive{}
	conn := dialSocket(t, live)

	encoded := base64.StdEncoding.EncodeToString(make([]byte, 320))
	writeText(t, conn, clientMessage{Type: "audio-chunk", SessionID: "s1", AudioData: encoded})

	deadline := time.Now().Add(time.Second)
	for live.audioCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio chunk never reached the orchestrator")
		}
		time.Sleep(time.Millisecond)
	}

	live.mu.Lock()
	defer live.mu.Unlock()
	if s, ok := live.audio[0].(string); !ok || s != encoded {
		t.Errorf("audio[0] = %v, want the base64 payload passed through", live.audio[0])
	}
}

func TestSocket_Pong(t *testing.T) {
	conn := dialSocket(t, &fakeLive{})

	writeText(t, conn, clientMessage{Type: "ping"})

	msg := readMessage(t, conn)
	if msg["type"] != "pong" {
		t.Errorf("message = %v, want pong", msg)
	}
	if _, ok := msg["timestamp"]; !ok {
		t.Error("pong missing timestamp")
	}
}

func TestSocket_UnknownTypeRejected(t *testing.T) {
	conn := dialSocket(t, &fakeLive{})

	writeText(t, conn, clientMessage{Type: "self-destruct"})

	msg := readMessage(t, conn)
	if msg["type"] != "error" {
		t.Errorf("message = %v, want error", msg)
	}
}

func TestSocket_DisconnectDetaches(t *testing.T) {
	live := &fakeLive{}
	conn := dialSocket(t, live)

	writeText(t, conn, clientMessage{Type: "join-session", SessionID: "s1"})
	deadline := time.Now().Add(time.Second)
	for {
		live.mu.Lock()
		joined := len(live.attached) > 0
		live.mu.Unlock()
		if joined {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("join never completed")
		}
		time.Sleep(time.Millisecond)
	}

	conn.Close(websocket.StatusNormalClosure, "done")

	deadline = time.Now().Add(time.Second)
	for {
		live.mu.Lock()
		detached := len(live.detached) == 1 && live.detached[0] == "s1"
		live.mu.Unlock()
		if detached {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect did not detach the session")
		}
		time.Sleep(time.Millisecond)
	}
}
