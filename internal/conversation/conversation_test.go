package conversation

import (
	"testing"
	"time"

	"github.com/nao1215/relay/internal/profile"
)

var (
	base  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alice = profile.User{ID: "alice", FirstName: "Alice", LastName: "Smith", Path: "/alice", Image: "alice.png"}
	bob   = profile.User{ID: "bob", FirstName: "Bob", LastName: "Jones", Path: "/bob", Image: "bob.png", ProfileImage: "bob-profile.png"}
	carol = profile.User{ID: "carol", FirstName: "Carol", LastName: "White", Path: "/carol"}
	dave  = profile.User{ID: "dave", FirstName: "Dave", LastName: "Brown", Path: "/dave", Image: "dave.png"}
)

// sent はaliceからtoへの送信メッセージを作るヘルパー関数。
func sent(id string, to profile.User, minutes int) Entry {
	return Entry{
		Message: Message{
			ID:          id,
			SenderID:    alice.ID,
			RecipientID: to.ID,
			Body:        "body-" + id,
			CreatedAt:   base.Add(time.Duration(minutes) * time.Minute),
		},
		Counterpart: to,
	}
}

// received はfromからaliceへの受信メッセージを作るヘルパー関数。
func received(id string, from profile.User, minutes int, seen bool) Entry {
	e := Entry{
		Message: Message{
			ID:          id,
			SenderID:    from.ID,
			RecipientID: alice.ID,
			Body:        "body-" + id,
			CreatedAt:   base.Add(time.Duration(minutes) * time.Minute),
		},
		Counterpart: from,
	}
	if seen {
		at := e.Message.CreatedAt.Add(time.Second)
		e.Message.SeenAt = &at
	}
	return e
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	t.Run("メッセージが無い場合は空の一覧を返す", func(t *testing.T) {
		t.Parallel()

		got := Aggregate(alice.ID, nil)
		if len(got) != 0 {
			t.Errorf("行数: got %d, want 0", len(got))
		}
	})

	t.Run("相手ごとに1行だけ返し最新メッセージの昇順に並べる", func(t *testing.T) {
		t.Parallel()

		entries := []Entry{
			sent("m1", bob, 1),
			received("m2", carol, 2, false),
			received("m3", bob, 3, false),
			sent("m4", carol, 5),
			received("m5", bob, 4, true),
		}

		got := Aggregate(alice.ID, entries)
		if len(got) != 2 {
			t.Fatalf("行数: got %d, want 2", len(got))
		}
		if got[0].UserID != bob.ID || got[0].Latest.ID != "m5" {
			t.Errorf("1行目: got (%s, %s), want (bob, m5)", got[0].UserID, got[0].Latest.ID)
		}
		if got[1].UserID != carol.ID || got[1].Latest.ID != "m4" {
			t.Errorf("2行目: got (%s, %s), want (carol, m4)", got[1].UserID, got[1].Latest.ID)
		}
	})

	t.Run("未読数は受信した未読メッセージだけを数える", func(t *testing.T) {
		t.Parallel()

		entries := []Entry{
			received("m1", bob, 1, false),
			received("m2", bob, 2, true),
			received("m3", bob, 3, false),
			sent("m4", bob, 10),
		}

		got := Aggregate(alice.ID, entries)
		if len(got) != 1 {
			t.Fatalf("行数: got %d, want 1", len(got))
		}
		if got[0].Unseen != 2 {
			t.Errorf("未読数: got %d, want 2", got[0].Unseen)
		}
		if !got[0].Outgoing {
			t.Error("最新が送信メッセージなのにOutgoingがfalse")
		}
		if got[0].Latest.ID != "m4" {
			t.Errorf("最新メッセージ: got %s, want m4", got[0].Latest.ID)
		}
	})

	t.Run("送信のみの会話は未読数0になる", func(t *testing.T) {
		t.Parallel()

		got := Aggregate(alice.ID, []Entry{sent("m1", carol, 1), sent("m2", carol, 2)})
		if len(got) != 1 {
			t.Fatalf("行数: got %d, want 1", len(got))
		}
		if got[0].Unseen != 0 || !got[0].Outgoing || got[0].Latest.ID != "m2" {
			t.Errorf("got %+v", got[0])
		}
	})

	t.Run("受信の方が新しければOutgoingはfalse", func(t *testing.T) {
		t.Parallel()

		got := Aggregate(alice.ID, []Entry{sent("m1", bob, 1), received("m2", bob, 2, false)})
		if got[0].Outgoing {
			t.Error("Outgoing: got true, want false")
		}
		if got[0].Latest.ID != "m2" {
			t.Errorf("最新メッセージ: got %s, want m2", got[0].Latest.ID)
		}
	})

	t.Run("作成日時が同じ場合は到着順の遅い方を最新とする", func(t *testing.T) {
		t.Parallel()

		first := received("m1", bob, 1, false)
		first.Message.Seq = 1
		second := sent("m2", bob, 1)
		second.Message.Seq = 2

		got := Aggregate(alice.ID, []Entry{second, first})
		if got[0].Latest.ID != "m2" {
			t.Errorf("最新メッセージ: got %s, want m2", got[0].Latest.ID)
		}
	})

	t.Run("最新日時が同じ行の順序は入力順を保つ", func(t *testing.T) {
		t.Parallel()

		entries := []Entry{
			received("m1", carol, 1, false),
			received("m2", bob, 1, false),
		}

		for range 5 {
			got := Aggregate(alice.ID, entries)
			if got[0].UserID != carol.ID || got[1].UserID != bob.ID {
				t.Fatalf("順序: got [%s %s], want [carol bob]", got[0].UserID, got[1].UserID)
			}
		}
	})

	t.Run("プロフィール画像があれば汎用画像より優先する", func(t *testing.T) {
		t.Parallel()

		got := Aggregate(alice.ID, []Entry{received("m1", bob, 1, false), received("m2", dave, 2, false)})
		if got[0].Img != "bob-profile.png" {
			t.Errorf("Img: got %q, want bob-profile.png", got[0].Img)
		}
		if got[0].DisplayName != "Bob Jones" {
			t.Errorf("DisplayName: got %q, want Bob Jones", got[0].DisplayName)
		}
		if got[1].Img != "dave.png" {
			t.Errorf("Img: got %q, want dave.png", got[1].Img)
		}
	})

	t.Run("入力スライスを変更しない", func(t *testing.T) {
		t.Parallel()

		entries := []Entry{sent("m2", bob, 2), received("m1", bob, 1, false)}
		_ = Aggregate(alice.ID, entries)
		if entries[0].Message.ID != "m2" || entries[1].Message.ID != "m1" {
			t.Error("入力スライスの順序が変わった")
		}
	})
}
