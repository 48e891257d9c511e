// Package fanout はサーバー発のイベントを宛先ユーザーの接続へ届ける。
//
// 宛先がオンラインなら接続へ送り、オフラインなら何もしない。メッセージや通知の
// レコードは呼び出し前にストアへ保存済みであり、それ自体が配送記録になる。
// 再接続したユーザーは会話一覧や通知フィードを取得して未配送分を受け取る。
package fanout

import (
	"log"

	"github.com/nao1215/relay/internal/presence"
	"github.com/nao1215/relay/pkg/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conn はイベントを送信できる接続。Sendは確認応答を待たない。
type Conn interface {
	presence.Handle
	Send(name event.Name, data any) error
}

// Outcome は配送結果を表す。
type Outcome int

const (
	// Queued は宛先がオフラインで、保存済みのレコードだけが残ったことを表す。
	Queued Outcome = iota
	// Live は接続へ送信したことを表す。
	Live
)

// String は配送結果の名前を返す。
func (o Outcome) String() string {
	if o == Live {
		return "live"
	}
	return "queued"
}

// Router は在席情報を参照してイベントを配送する。
type Router struct {
	// directory はユーザーIDから接続を引く在席ディレクトリ。
	directory *presence.Directory[Conn]
	// deliveries は配送結果ごとの件数。
	deliveries *prometheus.CounterVec
}

// NewRouter は新しいRouterを生成する。メトリクスはregに登録する。
func NewRouter(directory *presence.Directory[Conn], reg prometheus.Registerer) *Router {
	return &Router{
		directory: directory,
		deliveries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fanout_deliveries_total",
			Help: "Events delivered to recipients, by event and outcome.",
		}, []string{"event", "outcome"}),
	}
}

// Deliver はtargetのユーザーへイベントを届ける。
// 接続が無い場合や、送信直前に接続が閉じた場合はQueuedを返す。いずれもエラーではない。
func (r *Router) Deliver(target string, name event.Name, data any) Outcome {
	outcome := r.deliver(target, name, data)
	r.deliveries.WithLabelValues(string(name), outcome.String()).Inc()
	return outcome
}

func (r *Router) deliver(target string, name event.Name, data any) Outcome {
	conn, ok := r.directory.Lookup(target)
	if !ok {
		return Queued
	}
	if err := conn.Send(name, data); err != nil {
		log.Printf("配送できませんでした (user=%s, event=%s): %v", target, name, err)
		return Queued
	}
	return Live
}
