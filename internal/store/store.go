// Package store はリレーが読み書きする永続ストアをSQLiteで実装する。
//
// ユーザー・友達関係・投稿といいね・メッセージ・通知を保持し、
// 行をconversation・notification・profileパッケージの型に変換して返す。
// 日時はunixミリ秒で保存し、同じ日時のメッセージはrowidの到着順で並べる。
//
// ユーザー・友達関係・投稿・いいねは外部のサービスが管理する。DeleteUser、SetFriendship、
// CreatePost、DeletePost、Like、Messageはその内容をデータベースへ投入・確認するために用意している。
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/relay/internal/conversation"
	"github.com/nao1215/relay/internal/notification"
	"github.com/nao1215/relay/internal/profile"
	"github.com/nao1215/relay/internal/store/db"
	"github.com/nao1215/relay/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound は対象のユーザー・投稿・メッセージが存在しないことを表す。
var ErrNotFound = errors.New("見つかりません")

// FriendStatus は友達関係の状態。
type FriendStatus string

const (
	// FriendPending は申請中。
	FriendPending FriendStatus = "pending"
	// FriendAccepted は承認済み。
	FriendAccepted FriendStatus = "accepted"
)

// Store はSQLiteに対するリレーのストア。並行に利用してよい。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// queries はクエリ実行オブジェクト。
	queries *db.Queries
	// now は現在時刻を返す。
	now func() time.Time
}

// Open はdsnのSQLiteデータベースを開き、未適用のマイグレーションを適用する。
// ":memory:" の場合は接続を1つに制限する。接続ごとに別のデータベースになるため。
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := migration.Run(ctx, sqlDB, migrations, "migrations"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	return &Store{
		db:      sqlDB,
		queries: db.New(sqlDB),
		now:     time.Now,
	}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースに到達できるかを確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser はユーザーを作成して返す。IDが空ならUUIDを割り当てる。
func (s *Store) CreateUser(ctx context.Context, u profile.User) (profile.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if err := s.queries.CreateUser(ctx, db.CreateUserParams{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Path:         u.Path,
		Image:        u.Image,
		ProfileImage: u.ProfileImage,
	}); err != nil {
		return profile.User{}, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return u, nil
}

// UserByID は削除されていないユーザーをIDで取得する。
func (s *Store) UserByID(ctx context.Context, id string) (profile.User, error) {
	row, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return profile.User{}, notFound(err, "ユーザー", id)
	}
	return toUser(row), nil
}

// UserByPath は削除されていないユーザーをパスで取得する。
func (s *Store) UserByPath(ctx context.Context, path string) (profile.User, error) {
	row, err := s.queries.GetUserByPath(ctx, path)
	if err != nil {
		return profile.User{}, notFound(err, "ユーザー", path)
	}
	return toUser(row), nil
}

// DeleteUser はユーザーを論理削除する。削除後は認証できなくなる。
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.queries.DeleteUser(ctx, db.DeleteUserParams{
		DeletedAt: nullMillis(s.now()),
		ID:        id,
	}); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗: %w", err)
	}
	return nil
}

// SetFriendship はuserIDからfriendIDへの友達関係を作成または更新する。
func (s *Store) SetFriendship(ctx context.Context, userID, friendID string, status FriendStatus) error {
	if err := s.queries.UpsertFriendship(ctx, db.UpsertFriendshipParams{
		UserID:    userID,
		FriendID:  friendID,
		Status:    string(status),
		CreatedAt: s.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("友達関係の更新に失敗: %w", err)
	}
	return nil
}

// Friends は承認済みの友達を名前順に返す。
func (s *Store) Friends(ctx context.Context, userID string) ([]profile.User, error) {
	rows, err := s.queries.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("友達一覧の取得に失敗: %w", err)
	}
	friends := make([]profile.User, 0, len(rows))
	for _, r := range rows {
		friends = append(friends, toUser(r))
	}
	return friends, nil
}

// CreatePost は投稿を作成してIDを返す。
func (s *Store) CreatePost(ctx context.Context, authorID, body string) (string, error) {
	id := uuid.New().String()
	if err := s.queries.CreatePost(ctx, db.CreatePostParams{
		ID:        id,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: s.now().UnixMilli(),
	}); err != nil {
		return "", fmt.Errorf("投稿の作成に失敗: %w", err)
	}
	return id, nil
}

// DeletePost は投稿と付いていたいいねを削除する。
func (s *Store) DeletePost(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	if err := q.DeleteLikesByPost(ctx, id); err != nil {
		return fmt.Errorf("いいねの削除に失敗: %w", err)
	}
	if err := q.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("投稿の削除に失敗: %w", err)
	}
	return tx.Commit()
}

// Like はuserIDのユーザーとして投稿にいいねする。
func (s *Store) Like(ctx context.Context, postID, userID string) error {
	if err := s.queries.CreateLike(ctx, db.CreateLikeParams{
		PostID:    postID,
		UserID:    userID,
		CreatedAt: s.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("いいねの作成に失敗: %w", err)
	}
	return nil
}

// PostLikers は投稿にいいねしたユーザーを新しい順に返す。
// 投稿が存在しない場合はfoundがfalseになる。
func (s *Store) PostLikers(ctx context.Context, postID string) ([]profile.User, bool, error) {
	if _, err := s.queries.GetPost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("投稿の取得に失敗: %w", err)
	}

	rows, err := s.queries.ListPostLikers(ctx, postID)
	if err != nil {
		return nil, false, fmt.Errorf("いいね一覧の取得に失敗: %w", err)
	}
	likers := make([]profile.User, 0, len(rows))
	for _, r := range rows {
		likers = append(likers, toUser(r))
	}
	return likers, true, nil
}

var _ notification.LikeSource = (*Store)(nil)

// CreateMessage はsenderIDからrecipientIDへのメッセージを未読で保存して返す。
func (s *Store) CreateMessage(ctx context.Context, senderID, recipientID, body string) (conversation.Message, error) {
	msg := conversation.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   fromMillis(s.now().UnixMilli()),
	}
	seq, err := s.queries.CreateMessage(ctx, db.CreateMessageParams{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return conversation.Message{}, fmt.Errorf("メッセージの保存に失敗: %w", err)
	}
	msg.Seq = seq
	return msg, nil
}

// Message はメッセージをIDで取得する。
func (s *Store) Message(ctx context.Context, id string) (conversation.Message, error) {
	row, err := s.queries.GetMessage(ctx, id)
	if err != nil {
		return conversation.Message{}, notFound(err, "メッセージ", id)
	}
	return toMessage(row), nil
}

// ConversationEntries はユーザーが送受信したすべてのメッセージを会話相手と共に返す。
func (s *Store) ConversationEntries(ctx context.Context, userID string) ([]conversation.Entry, error) {
	rows, err := s.queries.ListConversationEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	entries := make([]conversation.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, conversation.Entry{
			Message: toMessage(r.Message),
			Counterpart: profile.User{
				ID:           r.CounterpartID,
				FirstName:    r.CounterpartFirstName,
				LastName:     r.CounterpartLastName,
				Path:         r.CounterpartPath,
				Image:        r.CounterpartImage,
				ProfileImage: r.CounterpartProfileImage,
			},
		})
	}
	return entries, nil
}

// MessagesBetween は2人の間のメッセージを古い順に返す。
func (s *Store) MessagesBetween(ctx context.Context, userID, otherID string) ([]conversation.Message, error) {
	rows, err := s.queries.ListMessagesBetween(ctx, db.ListMessagesBetweenParams{
		UserID:  userID,
		OtherID: otherID,
	})
	if err != nil {
		return nil, fmt.Errorf("メッセージ履歴の取得に失敗: %w", err)
	}
	messages := make([]conversation.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, toMessage(r))
	}
	return messages, nil
}

// MarkMessagesSeen はrecipientID宛ての未読メッセージに既読日時atを設定し、更新した件数を返す。
// 1件ずつ独立に更新する。既読済み・他人宛て・存在しないIDは変更せずに読み飛ばす。
func (s *Store) MarkMessagesSeen(ctx context.Context, recipientID string, ids []string, at time.Time) (int, error) {
	updated := 0
	for _, id := range ids {
		n, err := s.queries.MarkMessageSeen(ctx, db.MarkMessageSeenParams{
			SeenAt:      nullMillis(at),
			ID:          id,
			RecipientID: recipientID,
		})
		if err != nil {
			return updated, fmt.Errorf("メッセージ %s の既読化に失敗: %w", id, err)
		}
		updated += int(n)
	}
	return updated, nil
}

// NewNotification は作成する通知の内容。
type NewNotification struct {
	// FromID は発生元ユーザーID。
	FromID string
	// ToID は通知先ユーザーID。
	ToID string
	// Type は通知の種類。
	Type notification.Type
	// PostID はいいね通知の対象投稿。
	PostID string
	// Message は汎用通知の本文。
	Message string
}

// CreateNotification は未読の通知を保存してIDを返す。
func (s *Store) CreateNotification(ctx context.Context, n NewNotification) (string, error) {
	if !n.Type.Valid() {
		return "", fmt.Errorf("未定義の通知種別です: %q", n.Type)
	}
	if n.Type == notification.TypeLikePost && n.PostID == "" {
		return "", notification.ErrMissingPost
	}

	id := uuid.New().String()
	now := s.now().UnixMilli()
	if err := s.queries.CreateNotification(ctx, db.CreateNotificationParams{
		ID:        id,
		FromID:    n.FromID,
		ToID:      n.ToID,
		Type:      string(n.Type),
		PostID:    sql.NullString{String: n.PostID, Valid: n.PostID != ""},
		Message:   n.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("通知の作成に失敗: %w", err)
	}
	return id, nil
}

// NotificationRecords はユーザー宛ての通知を新しい順に送信者と共に返す。
func (s *Store) NotificationRecords(ctx context.Context, toID string) ([]notification.Record, error) {
	rows, err := s.queries.ListNotificationsForUser(ctx, toID)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗: %w", err)
	}
	records := make([]notification.Record, 0, len(rows))
	for _, r := range rows {
		n := r.Notification
		records = append(records, notification.Record{
			ID:        n.ID,
			FromID:    n.FromID,
			ToID:      n.ToID,
			Type:      notification.Type(n.Type),
			PostID:    n.PostID.String,
			Message:   n.Message,
			CreatedAt: fromMillis(n.CreatedAt),
			UpdatedAt: fromMillis(n.UpdatedAt),
			SeenAt:    fromNullMillis(n.SeenAt),
			Sender: profile.User{
				ID:           r.SenderID,
				FirstName:    r.SenderFirstName,
				LastName:     r.SenderLastName,
				Path:         r.SenderPath,
				Image:        r.SenderImage,
				ProfileImage: r.SenderProfileImage,
			},
		})
	}
	return records, nil
}

// UnseenNotificationCount はユーザー宛ての未読通知数を返す。
func (s *Store) UnseenNotificationCount(ctx context.Context, toID string) (int, error) {
	count, err := s.queries.CountUnseenNotifications(ctx, toID)
	if err != nil {
		return 0, fmt.Errorf("未読通知数の取得に失敗: %w", err)
	}
	return int(count), nil
}

// MarkNotificationsSeen はtoID宛ての未読通知に既読日時atを設定し、更新した件数を返す。
func (s *Store) MarkNotificationsSeen(ctx context.Context, toID string, ids []string, at time.Time) (int, error) {
	updated := 0
	for _, id := range ids {
		n, err := s.queries.MarkNotificationSeen(ctx, db.MarkNotificationSeenParams{
			SeenAt: nullMillis(at),
			ID:     id,
			ToID:   toID,
		})
		if err != nil {
			return updated, fmt.Errorf("通知 %s の既読化に失敗: %w", id, err)
		}
		updated += int(n)
	}
	return updated, nil
}

// notFound はsql.ErrNoRowsをErrNotFoundに置き換え、それ以外は取得失敗として包む。
func notFound(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return fmt.Errorf("%sの取得に失敗: %w", kind, err)
}

func toUser(u db.User) profile.User {
	return profile.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Path:         u.Path,
		Image:        u.Image,
		ProfileImage: u.ProfileImage,
	}
}

func toMessage(m db.Message) conversation.Message {
	return conversation.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		CreatedAt:   fromMillis(m.CreatedAt),
		SeenAt:      fromNullMillis(m.SeenAt),
		Seq:         m.Rowid,
	}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullMillis(t time.Time) sql.NullInt64 {
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
