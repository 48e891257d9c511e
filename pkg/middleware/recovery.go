package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Guard はfnを実行し、パニックが発生した場合はスタックトレースをログに出力して
// onPanicを呼び出す。パニックを回復した場合はtrueを返す。
// HTTPハンドラとリアルタイム接続のイベントハンドラの両方で使う。
func Guard(label string, fn func(), onPanic func(recovered any)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Printf("[PANIC] %s: %v\n%s", label, r, debug.Stack())
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	fn()
	return false
}

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にスタックトレースをログに出力し、500エラーを返す。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		Guard(c.Request.Method+" "+c.Request.URL.Path, c.Next, func(any) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "内部サーバーエラーが発生しました",
			})
		})
	}
}
