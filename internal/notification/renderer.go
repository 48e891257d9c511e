package notification

import (
	"context"
	"log"
)

// Renderer は通知レコードの列をフィード表示用に変換する。
type Renderer struct {
	// likes はいいね通知の描画時に使う取得元。
	likes LikeSource
}

// NewRenderer は新しいRendererを生成する。
func NewRenderer(likes LikeSource) *Renderer {
	return &Renderer{likes: likes}
}

// Render はレコードを入力順のまま描画する。
//
// 壊れたレコード（投稿IDの無いいいね通知）と、対象投稿が削除されたいいね通知は
// 結果から除外するだけでエラーにはしない。いいね一覧の取得自体が失敗した場合は
// ストア障害として全体をエラーにする。
func (r *Renderer) Render(ctx context.Context, records []Record) ([]Rendering, error) {
	result := make([]Rendering, 0, len(records))
	for _, rec := range records {
		if !rec.Type.Valid() {
			log.Printf("未定義の通知種別を汎用通知として表示します (id=%s, type=%s)", rec.ID, rec.Type)
		}

		n, err := Decode(rec)
		if err != nil {
			log.Printf("通知をスキップしました: %v", err)
			continue
		}

		rendering, ok, err := n.render(ctx, r.likes)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		result = append(result, rendering)
	}
	return result, nil
}
