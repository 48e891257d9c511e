package relay

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/fanout"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/presence"
	"github.com/nao1215/relay/internal/profile"
	"github.com/nao1215/relay/internal/session"
	"github.com/nao1215/relay/internal/store"
	"github.com/nao1215/relay/pkg/event"
)

// privateMessagePayload は private message 送信イベントのデータ。
type privateMessagePayload struct {
	Message conversation.Message `json:"message"`
}

// conversationPayload は get conversation 応答のデータ。
type conversationPayload struct {
	UserPath    string                 `json:"userPath"`
	Messages    []conversation.Message `json:"messages"`
	Img         string                 `json:"img"`
	DisplayName string                 `json:"displayName"`
}

// conversationListPayload は get conversation list 応答のデータ。
type conversationListPayload struct {
	Conversations []conversation.Summary `json:"conversations"`
}

// friendEntry は get friends list 応答の1件。
type friendEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Path        string `json:"path"`
	Img         string `json:"img"`
	Online      bool   `json:"online"`
}

// hub は受信イベントを処理する。ストアへ書き込んでから配送する。
type hub struct {
	store     *store.Store
	router    *fanout.Router
	directory *presence.Directory[fanout.Conn]
	renderer  *notification.Renderer
	now       func() time.Time
}

var _ session.Handlers = (*hub)(nil)

func newHub(st *store.Store, router *fanout.Router, directory *presence.Directory[fanout.Conn]) *hub {
	return &hub{
		store:     st,
		router:    router,
		directory: directory,
		renderer:  notification.NewRenderer(st),
		now:       time.Now,
	}
}

// userByPath はパスでユーザーを引く。存在しなければクライアントへ伝える失敗にする。
func (h *hub) userByPath(ctx context.Context, path string) (profile.User, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := h.store.UserByPath(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return profile.User{}, session.Reject("ユーザーが見つかりません", err)
	}
	return u, err
}

// PrivateMessage はメッセージを保存し、宛先がオンラインなら届ける。
func (h *hub) PrivateMessage(ctx context.Context, s *session.Session, data event.PrivateMessageData) error {
	if strings.TrimSpace(data.Message) == "" {
		return session.Reject("メッセージが空です", nil)
	}
	recipient, err := h.userByPath(ctx, data.To)
	if err != nil {
		return err
	}
	if recipient.ID == s.UserID() {
		return session.Reject("自分自身には送信できません", nil)
	}

	msg, err := h.store.CreateMessage(ctx, s.UserID(), recipient.ID, data.Message)
	if err != nil {
		return err
	}
	h.router.Deliver(recipient.ID, event.PrivateMessage, privateMessagePayload{Message: msg})
	return nil
}

// GetConversation は相手との会話履歴を返す。
func (h *hub) GetConversation(ctx context.Context, s *session.Session, data event.GetConversationData) error {
	payload, err := h.conversation(ctx, s.UserID(), data.UserPath)
	if err != nil {
		return err
	}
	return reply(s, event.GetConversation, payload)
}

func (h *hub) conversation(ctx context.Context, userID, path string) (conversationPayload, error) {
	other, err := h.userByPath(ctx, path)
	if err != nil {
		return conversationPayload{}, err
	}
	messages, err := h.store.MessagesBetween(ctx, userID, other.ID)
	if err != nil {
		return conversationPayload{}, err
	}
	return conversationPayload{
		UserPath:    other.Path,
		Messages:    messages,
		Img:         other.Avatar(),
		DisplayName: other.FullName(),
	}, nil
}

// GetConversationList は相手ごとの最新メッセージと未読数を返す。
func (h *hub) GetConversationList(ctx context.Context, s *session.Session, _ event.Empty) error {
	summaries, err := h.conversations(ctx, s.UserID())
	if err != nil {
		return err
	}
	return reply(s, event.GetConversationList, conversationListPayload{Conversations: summaries})
}

func (h *hub) conversations(ctx context.Context, userID string) ([]conversation.Summary, error) {
	entries, err := h.store.ConversationEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	return conversation.Aggregate(userID, entries), nil
}

// MessagesSeen は自分宛てのメッセージを既読にする。既読済みのものは変更しない。
func (h *hub) MessagesSeen(ctx context.Context, s *session.Session, data event.MessagesSeenData) error {
	batch := data.SeenMsgs
	_, err := h.store.MarkMessagesSeen(ctx, s.UserID(), batch.Messages, h.seenTime(batch.Time.Time))
	return err
}

// Notification は宛先の未読通知数を数え直し、宛先がオンラインなら届ける。
func (h *hub) Notification(ctx context.Context, _ *session.Session, data event.NotificationData) error {
	target, err := h.userByPath(ctx, data.To)
	if err != nil {
		return err
	}
	_, err = h.pushUnseenCount(ctx, target.ID)
	return err
}

// pushUnseenCount はuserIDの未読通知数を数えて届ける。
func (h *hub) pushUnseenCount(ctx context.Context, userID string) (fanout.Outcome, error) {
	count, err := h.store.UnseenNotificationCount(ctx, userID)
	if err != nil {
		return fanout.Queued, err
	}
	return h.router.Deliver(userID, event.Notification, count), nil
}

// NotificationsSeen は自分宛ての通知を既読にする。
func (h *hub) NotificationsSeen(ctx context.Context, s *session.Session, data event.NotificationsSeenData) error {
	_, err := h.store.MarkNotificationsSeen(ctx, s.UserID(), data.Notifications, h.seenTime(data.Time.Time))
	return err
}

// GetNotifications は通知フィードを新しい順に返す。
func (h *hub) GetNotifications(ctx context.Context, s *session.Session, _ event.Empty) error {
	feed, err := h.notifications(ctx, s.UserID())
	if err != nil {
		return err
	}
	return reply(s, event.GetNotifications, feed)
}

func (h *hub) notifications(ctx context.Context, userID string) ([]notification.Rendering, error) {
	records, err := h.store.NotificationRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return h.renderer.Render(ctx, records)
}

// CheckUnseenNotifications は未読通知があれば件数を返す。
func (h *hub) CheckUnseenNotifications(ctx context.Context, s *session.Session, _ event.Empty) error {
	count, err := h.store.UnseenNotificationCount(ctx, s.UserID())
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return reply(s, event.Notification, count)
}

// GetFriendsList は友達一覧を在席状況と共に返す。
func (h *hub) GetFriendsList(ctx context.Context, s *session.Session, _ event.Empty) error {
	friends, err := h.friends(ctx, s.UserID())
	if err != nil {
		return err
	}
	return reply(s, event.GetFriendsList, friends)
}

func (h *hub) friends(ctx context.Context, userID string) ([]friendEntry, error) {
	users, err := h.store.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]friendEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, friendEntry{
			ID:          u.ID,
			DisplayName: u.FullName(),
			Path:        u.Path,
			Img:         u.Avatar(),
			Online:      h.directory.Online(u.ID),
		})
	}
	return entries, nil
}

// seenTime はクライアントが指定した既読日時を返す。省略時は現在時刻。
func (h *hub) seenTime(t time.Time) time.Time {
	if t.IsZero() {
		return h.now()
	}
	return t
}

// reply はセッションへ応答を送る。接続が既に閉じていても処理自体は成功として扱う。
func reply(s *session.Session, name event.Name, data any) error {
	if err := s.Send(name, data); err != nil {
		log.Printf("応答を送信できませんでした (user=%s, event=%s): %v", s.UserID(), name, err)
	}
	return nil
}
