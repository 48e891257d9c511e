// Package middleware はGinベースのHTTP APIとリアルタイム接続で使用する共通処理を提供する。
//
// JWT認証トークンの発行と検証、パニックリカバリ、CORS設定を含む。
// トークン検証は期限切れとそれ以外の失敗を区別し、クライアントがトークン更新と
// 再ログインを判断できるようにする。
package middleware
