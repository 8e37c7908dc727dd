package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const controlAudience = "medref-control"

// TokenConfig holds control token configuration
type TokenConfig struct {
	Secret     string
	Expiration time.Duration
}

// Claims represents control token claims
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new control token for the named client
func GenerateToken(client string, config TokenConfig) (string, error) {
	if config.Secret == "" {
		return "", errors.New("control secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{controlAudience},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if config.Expiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(config.Expiration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Secret))
}

// ControlAuth guards the control surface with an HS256 bearer token.
// An empty secret leaves the surface open. Websocket clients may pass the token as ?token=.
func ControlAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(controlAudience),
		)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(*Claims); ok && token.Valid {
			c.Set("client", claims.Client)
			c.Next()
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

// GetClient returns the authenticated control client name, if any
func GetClient(c *gin.Context) string {
	return c.GetString("client")
}
