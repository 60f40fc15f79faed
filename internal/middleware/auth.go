package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "owner_id"

// Auth проверяет JWT и кладёт subject токена в контекст как owner id.
// Дальше ядро этому значению доверяет: других проверок личности нет.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ownerKey, claims.Subject)
		c.Next()
	}
}

// OwnerID достаёт владельца, положенного Auth. Пустая строка возможна
// только на маршруте без Auth — это ошибка роутинга, не запроса.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}

	// Браузерные клиенты ходят с cookie
	if cookie, err := c.Cookie("auth_token"); err == nil {
		return cookie
	}
	return ""
}
