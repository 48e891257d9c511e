package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/relay/pkg/event"
)

// Handlers は受信イベントごとの処理。受信イベント1種類につきメソッドが1つある。
// 応答やエラー通知はSession.Sendで送る。
type Handlers interface {
	PrivateMessage(ctx context.Context, s *Session, data event.PrivateMessageData) error
	GetConversation(ctx context.Context, s *Session, data event.GetConversationData) error
	GetConversationList(ctx context.Context, s *Session, data event.Empty) error
	MessagesSeen(ctx context.Context, s *Session, data event.MessagesSeenData) error
	Notification(ctx context.Context, s *Session, data event.NotificationData) error
	NotificationsSeen(ctx context.Context, s *Session, data event.NotificationsSeenData) error
	GetNotifications(ctx context.Context, s *Session, data event.Empty) error
	CheckUnseenNotifications(ctx context.Context, s *Session, data event.Empty) error
	GetFriendsList(ctx context.Context, s *Session, data event.Empty) error
}

// ErrBadPayload はイベントデータを期待する型として読めなかったことを表す。
var ErrBadPayload = errors.New("イベントデータが不正です")

// Failure はクライアントへ文言をそのまま伝えてよい失敗。
// 宛先が存在しないなど、利用者が対処できるものに使う。
type Failure struct {
	// Message はクライアントに送る短い文言。
	Message string
	// Err は原因。
	Err error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return fmt.Sprintf("%s: %v", f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Reject はクライアントへmessageを伝える失敗を作る。
func Reject(message string, err error) error {
	return &Failure{Message: message, Err: err}
}

// route は受信イベントをデコードして対応するハンドラを呼ぶ。
type route func(ctx context.Context, h Handlers, s *Session, e *event.Envelope) error

// bind はハンドラのメソッド式からrouteを作る。データの型はメソッドの引数から決まる。
func bind[T any](fn func(Handlers, context.Context, *Session, T) error) route {
	return func(ctx context.Context, h Handlers, s *Session, e *event.Envelope) error {
		data, err := event.DecodeData[T](e)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return fn(h, ctx, s, *data)
	}
}

// routes は受信イベント名からrouteを引くディスパッチ表。
var routes = map[event.Name]route{
	event.PrivateMessage:           bind(Handlers.PrivateMessage),
	event.GetConversation:          bind(Handlers.GetConversation),
	event.GetConversationList:      bind(Handlers.GetConversationList),
	event.MessagesSeen:             bind(Handlers.MessagesSeen),
	event.Notification:             bind(Handlers.Notification),
	event.NotificationsSeen:        bind(Handlers.NotificationsSeen),
	event.GetNotifications:         bind(Handlers.GetNotifications),
	event.CheckUnseenNotifications: bind(Handlers.CheckUnseenNotifications),
	event.GetFriendsList:           bind(Handlers.GetFriendsList),
}

// クライアントへ送るエラー文言。
const (
	msgBadMessage   = "不正なメッセージです"
	msgBadPayload   = "不正なデータです"
	msgUnknownEvent = "未対応のイベントです"
	msgRateLimited  = "リクエストが多すぎます"
	msgStoreFailure = "データベースエラー"
	msgInternal     = "内部エラーが発生しました"
)

// clientMessage はハンドラのエラーをクライアントへ送る文言に変換する。
// Failure以外の失敗はストア障害として扱い、詳細は伝えない。
func clientMessage(err error) string {
	var f *Failure
	switch {
	case errors.As(err, &f):
		return f.Message
	case errors.Is(err, ErrBadPayload):
		return msgBadPayload
	default:
		return msgStoreFailure
	}
}
