package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/relay/internal/profile"
)

// Type は通知の種類を表す。
type Type string

const (
	// TypeFriendRequest は友達申請を受け取ったことを表す。
	TypeFriendRequest Type = "friend-request"
	// TypeFriendRequestConfirmed は送った友達申請が承認されたことを表す。
	TypeFriendRequestConfirmed Type = "friend-request-confirmed"
	// TypeLikePost は自分の投稿にいいねが付いたことを表す。
	TypeLikePost Type = "like-post"
	// TypeGeneric は保存済みの本文をそのまま表示する通知を表す。
	TypeGeneric Type = "generic"
)

// Types は定義済みの通知種別の一覧。
var Types = []Type{TypeFriendRequest, TypeFriendRequestConfirmed, TypeLikePost, TypeGeneric}

// Valid は定義済みの種別かどうかを返す。
func (t Type) Valid() bool {
	return slices.Contains(Types, t)
}

// ErrMissingPost はいいね通知に対象投稿の参照が無いことを表す。
var ErrMissingPost = errors.New("いいね通知に投稿IDがありません")

// Record はストアに保存された通知と送信者の表示情報。
type Record struct {
	// ID は通知の一意識別子。
	ID string
	// FromID は通知の発生元ユーザーID。
	FromID string
	// ToID は通知先ユーザーID。
	ToID string
	// Type は通知の種類。
	Type Type
	// PostID はいいね通知の対象投稿。その他の種類では空。
	PostID string
	// Message は保存済みの本文。汎用通知でのみ表示に使う。
	Message string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
	// SeenAt は既読日時。nilなら未読。
	SeenAt *time.Time
	// Sender は発生元ユーザーの表示情報。
	Sender profile.User
}

// Rendering は通知フィードに表示する1件。
// ID・Type・Message・Updated・Seenは種類によらず常に含まれる。
type Rendering struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// Type は通知の種類。
	Type Type `json:"type"`
	// Message は表示用の文言。
	Message string `json:"message"`
	// Img は送信者の画像。
	Img string `json:"img"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// Updated は更新日時。
	Updated time.Time `json:"updated"`
	// Seen は既読日時。未読ならnull。
	Seen *time.Time `json:"seen"`
	// Path はクリック時の遷移先。遷移しない種類では空。
	Path string `json:"path,omitempty"`
	// PostID はいいね通知の対象投稿。
	PostID string `json:"postId,omitempty"`
}

// LikeSource はいいね通知の描画時に投稿の現在のいいね一覧を取得する。
// likersは新しい順に並ぶ。投稿が存在しない場合はfoundがfalseになる。
type LikeSource interface {
	PostLikers(ctx context.Context, postID string) (likers []profile.User, found bool, err error)
}

// Notification は通知バリアントの共通インターフェース。
// 実装はこのパッケージ内の型に限られる。
type Notification interface {
	// Meta は種類によらない共通項目を返す。
	Meta() Base
	// render は表示内容を組み立てる。okがfalseなら描画対象から外す。
	render(ctx context.Context, likes LikeSource) (r Rendering, ok bool, err error)
}

// Base はすべての通知バリアントが持つ共通項目。
type Base struct {
	ID        string
	Type      Type
	Sender    profile.User
	CreatedAt time.Time
	UpdatedAt time.Time
	SeenAt    *time.Time
}

// Meta は共通項目を返す。
func (b Base) Meta() Base { return b }

func (b Base) rendering(message, path string) Rendering {
	return Rendering{
		ID:        b.ID,
		Type:      b.Type,
		Message:   message,
		Img:       b.Sender.Avatar(),
		CreatedAt: b.CreatedAt,
		Updated:   b.UpdatedAt,
		Seen:      b.SeenAt,
		Path:      path,
	}
}

// FriendRequest は友達申請の通知。
type FriendRequest struct{ Base }

func (n FriendRequest) render(context.Context, LikeSource) (Rendering, bool, error) {
	return n.rendering(fmt.Sprintf("%s sent you a friend request", n.Sender.FullName()), ""), true, nil
}

// FriendRequestConfirmed は友達申請が承認されたことの通知。
type FriendRequestConfirmed struct{ Base }

func (n FriendRequestConfirmed) render(context.Context, LikeSource) (Rendering, bool, error) {
	return n.rendering(fmt.Sprintf("%s accepted your friend request", n.Sender.FullName()), n.Sender.Path), true, nil
}

// LikePost は投稿へのいいねの通知。
type LikePost struct {
	Base
	// PostID は対象投稿。
	PostID string
}

func (n LikePost) render(ctx context.Context, likes LikeSource) (Rendering, bool, error) {
	likers, found, err := likes.PostLikers(ctx, n.PostID)
	if err != nil {
		return Rendering{}, false, fmt.Errorf("投稿 %s のいいね取得に失敗: %w", n.PostID, err)
	}
	// 投稿が削除済み、またはいいねが全て取り消された
	if !found || len(likers) == 0 {
		return Rendering{}, false, nil
	}

	names := make([]string, 0, len(likers))
	for _, u := range likers {
		names = append(names, u.FullName())
	}
	r := n.rendering(LikeMessage(names), n.Sender.Path)
	r.PostID = n.PostID
	return r, true, nil
}

// Generic は保存済みの本文をそのまま表示する通知。
type Generic struct {
	Base
	// Text は保存済みの本文。
	Text string
}

func (n Generic) render(context.Context, LikeSource) (Rendering, bool, error) {
	return n.rendering(n.Text, ""), true, nil
}

// LikeMessage はいいねしたユーザー名（新しい順）から文言を作る。
//
//	1人: "A liked your post"
//	2人: "A and B liked your post"
//	3人以上: "A, B and N others liked your post"（Nは総数-2）
func LikeMessage(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s liked your post", names[0])
	case 2:
		return fmt.Sprintf("%s and %s liked your post", names[0], names[1])
	default:
		return fmt.Sprintf("%s, %s and %d others liked your post", names[0], names[1], len(names)-2)
	}
}

// Decode はストアのレコードを種類に応じたバリアントに変換する。
// 未定義の種類は本文をそのまま表示する汎用通知として扱う。
func Decode(rec Record) (Notification, error) {
	b := Base{
		ID:        rec.ID,
		Type:      rec.Type,
		Sender:    rec.Sender,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		SeenAt:    rec.SeenAt,
	}
	switch rec.Type {
	case TypeFriendRequest:
		return FriendRequest{Base: b}, nil
	case TypeFriendRequestConfirmed:
		return FriendRequestConfirmed{Base: b}, nil
	case TypeLikePost:
		if rec.PostID == "" {
			return nil, fmt.Errorf("通知 %s: %w", rec.ID, ErrMissingPost)
		}
		return LikePost{Base: b, PostID: rec.PostID}, nil
	default:
		return Generic{Base: b, Text: rec.Message}, nil
	}
}
