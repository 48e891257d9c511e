// Package event はリアルタイム接続でやり取りするイベントの名前とペイロードを定義する。
//
// 接続上の1メッセージは {"event": 名前, "data": ペイロード} 形式のJSONで、
// クライアントからサーバーへの受信イベントとサーバーからクライアントへの送信イベントがある。
//
// 既読日時の "time" はRFC 3339形式の文字列とunixミリ秒の数値のどちらでも受け付ける。
package event

import "slices"

// Name はイベント名を表す。
type Name string

// クライアントからサーバーへ送られるイベント。
const (
	// PrivateMessage はプライベートメッセージの送信。送信イベントとしても使う。
	PrivateMessage Name = "private message"
	// GetConversation は特定の相手との会話履歴の取得。応答も同名で返す。
	GetConversation Name = "get conversation"
	// GetConversationList は会話一覧の取得。応答も同名で返す。
	GetConversationList Name = "get conversation list"
	// MessagesSeen はメッセージの既読化。
	MessagesSeen Name = "messages seen"
	// Notification は相手への通知作成の合図。送信イベントとしては未読通知数を運ぶ。
	Notification Name = "notification"
	// NotificationsSeen は通知の既読化。
	NotificationsSeen Name = "notifications seen"
	// GetNotifications は通知フィードの取得。応答も同名で返す。
	GetNotifications Name = "get notifications"
	// CheckUnseenNotifications は未読通知数の確認。
	CheckUnseenNotifications Name = "check unseen notifications"
	// GetFriendsList は友達一覧の取得。応答も同名で返す。
	GetFriendsList Name = "get friends list"
)

// Error はサーバーからクライアントへのエラー通知。データは短い文字列。
const Error Name = "error"

// Inbound はクライアントから受け付けるイベントの一覧。
var Inbound = []Name{
	PrivateMessage,
	GetConversation,
	GetConversationList,
	MessagesSeen,
	Notification,
	NotificationsSeen,
	GetNotifications,
	CheckUnseenNotifications,
	GetFriendsList,
}

// Outbound はサーバーから送るイベントの一覧。
var Outbound = []Name{
	PrivateMessage,
	Notification,
	GetConversation,
	GetConversationList,
	GetNotifications,
	GetFriendsList,
	Error,
}

// IsInbound はnameがクライアントから受け付けるイベントかを返す。
func IsInbound(name Name) bool {
	return slices.Contains(Inbound, name)
}

// IsOutbound はnameがサーバーから送るイベントかを返す。
func IsOutbound(name Name) bool {
	return slices.Contains(Outbound, name)
}

// PrivateMessageData は private message イベントのデータ。
type PrivateMessageData struct {
	// To は宛先ユーザーのパス。
	To string `json:"to"`
	// Message は本文。
	Message string `json:"message"`
}

// GetConversationData は get conversation イベントのデータ。
type GetConversationData struct {
	// UserPath は会話相手のパス。
	UserPath string `json:"userPath"`
}

// Empty はデータを持たないイベントのデータ。
type Empty struct{}

// SeenBatch は既読にする対象と既読日時。
type SeenBatch struct {
	// Messages は既読にするメッセージID。
	Messages []string `json:"messages"`
	// Time は既読日時。省略時はサーバーの現在時刻を使う。
	Time Timestamp `json:"time"`
}

// MessagesSeenData は messages seen イベントのデータ。
type MessagesSeenData struct {
	// SeenMsgs は既読にするメッセージ。
	SeenMsgs SeenBatch `json:"seenMsgs"`
}

// NotificationData は notification イベントのデータ。
type NotificationData struct {
	// To は通知先ユーザーのパス。
	To string `json:"to"`
}

// NotificationsSeenData は notifications seen イベントのデータ。
type NotificationsSeenData struct {
	// Notifications は既読にする通知ID。
	Notifications []string `json:"notifications"`
	// Time は既読日時。省略時はサーバーの現在時刻を使う。
	Time Timestamp `json:"time"`
}
