// リレーサービスのエントリポイント。
// WebSocketでプライベートメッセージと通知をオンラインのユーザーへ中継し、
// 会話一覧と通知フィードをSQLiteから組み立てて返す。
package main

import (
	"context"
	"log"

	"github.com/nao1215/relay/internal/relay"
)

func main() {
	cfg, err := relay.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := relay.NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("リレーサーバーの初期化に失敗: %v", err)
	}
	defer server.Close()

	log.Printf("リレーサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("リレーサービスの起動に失敗: %v", err)
	}
}
