package fanout

import (
	"errors"
	"sync"
	"testing"

	"github.com/nao1215/relay/internal/presence"
	"github.com/nao1215/relay/pkg/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingConn は送信したイベントを記録するテスト用の接続。
type recordingConn struct {
	id     string
	mu     sync.Mutex
	closed bool
	sent   []event.Name
	data   []any
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(name event.Name, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, name)
	c.data = append(c.data, data)
	return nil
}

func setupRouter(t *testing.T) (*Router, *presence.Directory[Conn]) {
	t.Helper()
	dir := presence.NewDirectory[Conn]()
	return NewRouter(dir, prometheus.NewRegistry()), dir
}

func TestDeliver(t *testing.T) {
	t.Parallel()

	t.Run("オンラインの宛先には接続へ送信しLiveを返す", func(t *testing.T) {
		t.Parallel()

		r, dir := setupRouter(t)
		conn := &recordingConn{id: "c1"}
		dir.Register("bob", conn)

		got := r.Deliver("bob", event.PrivateMessage, "hi")
		if got != Live {
			t.Errorf("Outcome: got %s, want live", got)
		}
		if len(conn.sent) != 1 || conn.sent[0] != event.PrivateMessage {
			t.Errorf("送信イベント: got %v", conn.sent)
		}
		if conn.data[0] != "hi" {
			t.Errorf("送信データ: got %v, want hi", conn.data[0])
		}
	})

	t.Run("オフラインの宛先はQueuedを返す", func(t *testing.T) {
		t.Parallel()

		r, _ := setupRouter(t)
		if got := r.Deliver("bob", event.Notification, 1); got != Queued {
			t.Errorf("Outcome: got %s, want queued", got)
		}
	})

	t.Run("閉じた接続への送信はエラーにせずQueuedを返す", func(t *testing.T) {
		t.Parallel()

		r, dir := setupRouter(t)
		dir.Register("bob", &recordingConn{id: "c1", closed: true})

		if got := r.Deliver("bob", event.Notification, 1); got != Queued {
			t.Errorf("Outcome: got %s, want queued", got)
		}
	})

	t.Run("配送結果ごとに件数を数える", func(t *testing.T) {
		t.Parallel()

		r, dir := setupRouter(t)
		dir.Register("bob", &recordingConn{id: "c1"})

		r.Deliver("bob", event.PrivateMessage, "a")
		r.Deliver("bob", event.PrivateMessage, "b")
		r.Deliver("carol", event.PrivateMessage, "c")

		if got := testutil.ToFloat64(r.deliveries.WithLabelValues(string(event.PrivateMessage), "live")); got != 2 {
			t.Errorf("live: got %v, want 2", got)
		}
		if got := testutil.ToFloat64(r.deliveries.WithLabelValues(string(event.PrivateMessage), "queued")); got != 1 {
			t.Errorf("queued: got %v, want 1", got)
		}
	})
}
