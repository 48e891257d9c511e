// Package notification は通知フィードの表示内容を組み立てる。
//
// ストアに保存された通知レコードを種類ごとのバリアント（友達申請、友達承認、
// 投稿へのいいね、汎用）に変換し、それぞれが自分の表示方法を知っている。
// 新しい種類を追加するとNotificationインターフェースの実装が必要になるため、
// 表示処理の書き漏れはコンパイル時に検出される。
//
// いいね通知は描画時に対象投稿の現在のいいね一覧を取得する。投稿が削除されていた場合、
// その通知はエラーにせずフィードから黙って除外する。
package notification
