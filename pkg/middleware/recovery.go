package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時は障害IDを採番してログに出力し、同じIDを含む500エラーを返す。
// ユーザーからの問い合わせとログを突き合わせるために障害IDを使う。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				incidentID := uuid.New().String()
				log.Printf("[PANIC] incident=%s %s %s: %v", incidentID, c.Request.Method, c.Request.URL.Path, r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":       "内部サーバーエラーが発生しました",
					"incident_id": incidentID,
				})
			}
		}()
		c.Next()
	}
}
