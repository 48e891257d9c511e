// Package session は1本のリアルタイム接続のライフサイクルを管理する。
//
// 接続は Connecting → Authenticating → Active → Disconnected の順に遷移する。
// 認証に成功すると在席ディレクトリへ登録し、切断時に同じ接続の登録だけを解除する。
// Active中に受け取ったイベントは型付きのディスパッチ表でハンドラへ渡し、
// 同じ接続のイベントは1件ずつ順に処理する。
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nao1215/relay/internal/fanout"
	"github.com/nao1215/relay/internal/profile"
	"github.com/nao1215/relay/pkg/event"
	"golang.org/x/time/rate"
)

// State はセッションの状態を表す。
type State int

const (
	// Connecting は接続が開いた直後の状態。
	Connecting State = iota
	// Authenticating は資格情報を検証している状態。
	Authenticating
	// Active は認証済みでイベントを処理できる状態。
	Active
	// Disconnected は終了した状態。ここから他の状態には戻らない。
	Disconnected
)

// String は状態の名前を返す。
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInvalidTransition は許されない状態遷移を表す。
var ErrInvalidTransition = errors.New("不正な状態遷移です")

// transitions は状態ごとの遷移先。
var transitions = map[State][]State{
	Connecting:     {Authenticating, Disconnected},
	Authenticating: {Active, Disconnected},
	Active:         {Disconnected},
}

// Session は1本の接続と、認証後に結びついたユーザー。
type Session struct {
	// conn はこのセッションの接続。
	conn fanout.Conn
	// limiter は受信イベントの流量制限。
	limiter *rate.Limiter
	// serial は同じセッションのイベント処理を直列化する。
	serial sync.Mutex

	mu    sync.RWMutex
	state State
	user  profile.User
}

func newSession(conn fanout.Conn, limiter *rate.Limiter) *Session {
	return &Session{conn: conn, limiter: limiter, state: Connecting}
}

// State は現在の状態を返す。
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User は認証済みユーザーを返す。認証前はゼロ値。
func (s *Session) User() profile.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID は認証済みユーザーのIDを返す。
func (s *Session) UserID() string {
	return s.User().ID
}

// ConnID は接続の識別子を返す。
func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Send はこのセッションの接続へイベントを送る。
func (s *Session) Send(name event.Name, data any) error {
	return s.conn.Send(name, data)
}

// transition はfromからtoへ遷移する。現在の状態がfromでなければ何もせずエラーを返す。
func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: %s → %s (現在 %s)", ErrInvalidTransition, from, to, s.state)
	}
	for _, next := range transitions[from] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// activate はユーザーを結びつけてActiveへ遷移する。
func (s *Session) activate(user profile.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticating {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.state, Active)
	}
	s.state = Active
	s.user = user
	return nil
}

// disconnect はDisconnectedへ遷移し、直前の状態を返す。
func (s *Session) disconnect() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = Disconnected
	return prev
}
