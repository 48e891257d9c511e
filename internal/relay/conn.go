package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nao1215/relay/internal/fanout"
	"github.com/nao1215/relay/pkg/event"
)

var (
	// ErrClosed は閉じた接続へ送信しようとしたことを表す。
	ErrClosed = errors.New("接続は閉じています")
	// ErrSendBufferFull は送信待ちが上限に達したことを表す。受信側が遅すぎる。
	ErrSendBufferFull = errors.New("送信バッファがいっぱいです")
	// ErrNotOutbound はサーバーから送るイベントとして定義されていない名前を表す。
	ErrNotOutbound = errors.New("送信できないイベントです")
)

const (
	// writeWait は1回の書き込みの期限。
	writeWait = 10 * time.Second
	// pongWait はpongを待つ期限。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = pongWait * 9 / 10
	// maxMessageSize は受信メッセージの最大バイト数。
	maxMessageSize = 64 * 1024
)

// wsConn はWebSocket上の1接続。書き込みは専用のゴルーチンだけが行う。
type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

var _ fanout.Conn = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// ID は接続ごとに一意な識別子を返す。
func (c *wsConn) ID() string { return c.id }

// Send はイベントを送信待ちに積む。書き込みの完了は待たない。
// 閉じた後の接続には積まずErrClosedを返す。
func (c *wsConn) Send(name event.Name, data any) error {
	if !event.IsOutbound(name) {
		return fmt.Errorf("%w: %s", ErrNotOutbound, name)
	}
	e, err := event.New(name, data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		// 積んだ直後に閉じられた場合、書き込みゴルーチンはもう読まない
		select {
		case <-c.done:
			return ErrClosed
		default:
			return nil
		}
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close は接続を閉じる。何度呼んでもよい。
func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// reject は認証に失敗した接続へerrorイベントを書いてから閉じる。
func (c *wsConn) reject(message string) {
	defer c.Close()
	e, err := event.New(event.Error, message)
	if err != nil {
		return
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(e); err != nil {
		return
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message),
		time.Now().Add(writeWait))
}

// writeLoop は送信待ちのイベントとpingを書き込む。接続が閉じるまで戻らない。
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Printf("書き込みに失敗 (conn=%s): %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop は受信したテキストメッセージをhandleへ1件ずつ渡す。接続が閉じるまで戻らない。
func (c *wsConn) readLoop(handle func(raw []byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("接続が異常終了しました (conn=%s): %v", c.id, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(raw)
	}
}
