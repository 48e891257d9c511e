// Package conversation はメッセージ履歴から会話一覧を組み立てる。
//
// Aggregate は送受信したメッセージの平坦な列を受け取り、相手ごとに
// 最新メッセージと未読数を持つ1行へ集約する。ストアに依存しない純粋関数なので、
// 永続化層なしで単体テストできる。
package conversation

import (
	"slices"
	"time"

	"github.com/nao1215/relay/internal/profile"
)

// Message は2人のユーザー間のプライベートメッセージ。
// 作成後に変化するのはSeenAtのみで、未設定から一度だけ設定される。
type Message struct {
	// ID はメッセージの一意識別子（UUID）。
	ID string `json:"id"`
	// SenderID は送信者のユーザーID。
	SenderID string `json:"senderId"`
	// RecipientID は受信者のユーザーID。
	RecipientID string `json:"recipientId"`
	// Body は本文。
	Body string `json:"message"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"createdAt"`
	// SeenAt は受信者が既読にした日時。nilなら未読。
	SeenAt *time.Time `json:"seen,omitempty"`
	// Seq はストアへの到着順。作成日時が同じメッセージの順序づけに使う。
	Seq int64 `json:"-"`
}

// Unseen はメッセージが未読かどうかを返す。
func (m Message) Unseen() bool {
	return m.SeenAt == nil
}

// Entry は集約の入力となる1件。メッセージと会話相手の表示情報の組。
type Entry struct {
	// Message は送信または受信したメッセージ。
	Message Message
	// Counterpart はこのメッセージの会話相手。
	Counterpart profile.User
}

// Summary は会話相手1人分の集約結果。永続化はされない。
type Summary struct {
	// UserID は会話相手のユーザーID。
	UserID string `json:"userId"`
	// DisplayName は会話相手の表示名。
	DisplayName string `json:"displayName"`
	// Path は会話相手のパス。
	Path string `json:"path"`
	// Img は会話相手の画像。
	Img string `json:"img"`
	// Latest は2人の間で最も新しいメッセージ。
	Latest Message `json:"latest"`
	// Outgoing はLatestが自分の送信したメッセージであることを表す。
	Outgoing bool `json:"outgoing"`
	// Unseen は自分が受信者でまだ既読にしていないメッセージの数。
	Unseen int `json:"unseen"`
}

// candidate は相手ごとの最新メッセージ候補。
type candidate struct {
	msg   Message
	index int
}

// later はaがbより新しいかを返す。作成日時が同じならストアへの到着順、
// それも同じなら入力順で比べる。
func (a candidate) later(b candidate) bool {
	if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
		return a.msg.CreatedAt.After(b.msg.CreatedAt)
	}
	if a.msg.Seq != b.msg.Seq {
		return a.msg.Seq > b.msg.Seq
	}
	return a.index > b.index
}

// partition は相手1人分の途中集計。
type partition struct {
	counterpart profile.User
	outgoing    *candidate
	incoming    *candidate
	unseen      int
}

// Aggregate はuserIDのユーザーが送受信したメッセージから会話一覧を作る。
//
// 相手ごとにちょうど1行を返し、最新メッセージの作成日時の昇順に並べる。
// 送信と受信の両方がある場合は新しい方を最新メッセージとし、未読数は常に受信側から数える。
// 作成日時が同じ行の順序は入力順に従う。
func Aggregate(userID string, entries []Entry) []Summary {
	parts := make(map[string]*partition)
	var order []string

	for i, e := range entries {
		key := e.Counterpart.ID
		p, ok := parts[key]
		if !ok {
			p = &partition{counterpart: e.Counterpart}
			parts[key] = p
			order = append(order, key)
		}

		c := candidate{msg: e.Message, index: i}
		switch {
		case e.Message.SenderID == userID:
			if p.outgoing == nil || c.later(*p.outgoing) {
				p.outgoing = &c
			}
		case e.Message.RecipientID == userID:
			if p.incoming == nil || c.later(*p.incoming) {
				p.incoming = &c
			}
			if e.Message.Unseen() {
				p.unseen++
			}
		}
	}

	type row struct {
		summary Summary
		kept    candidate
	}
	rows := make([]row, 0, len(order))
	for _, key := range order {
		p := parts[key]
		kept, outgoing, ok := p.latest()
		if !ok {
			continue
		}
		rows = append(rows, row{
			summary: Summary{
				UserID:      p.counterpart.ID,
				DisplayName: p.counterpart.FullName(),
				Path:        p.counterpart.Path,
				Img:         p.counterpart.Avatar(),
				Latest:      kept.msg,
				Outgoing:    outgoing,
				Unseen:      p.unseen,
			},
			kept: kept,
		})
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		if a.kept.later(b.kept) {
			return 1
		}
		if b.kept.later(a.kept) {
			return -1
		}
		return 0
	})

	result := make([]Summary, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.summary)
	}
	return result
}

// latest は送信側と受信側の候補を突き合わせ、新しい方を返す。
func (p *partition) latest() (candidate, bool, bool) {
	switch {
	case p.outgoing == nil && p.incoming == nil:
		return candidate{}, false, false
	case p.incoming == nil:
		return *p.outgoing, true, true
	case p.outgoing == nil:
		return *p.incoming, false, true
	case p.outgoing.later(*p.incoming):
		return *p.outgoing, true, true
	default:
		return *p.incoming, false, true
	}
}
