package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// Context keys set by Auth
const (
	SessionKey = "session_id"
	CompanyKey = "company_id"
)

// SessionClaims identify a dashboard session and its tenant
type SessionClaims struct {
	SessionID string `json:"sid"`
	CompanyID int64  `json:"tenant"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies session tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer signing with HMAC-SHA256
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a new session id and its signed token
func (t *Tokens) Issue(companyID int64) (token, sessionID string, err error) {
	sessionID = uuid.NewString()
	now := t.now()
	claims := SessionClaims{
		SessionID: sessionID,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, sessionID, nil
}

// Parse verifies a token and returns its claims
func (t *Tokens) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, errors.New("token has no session id")
	}
	return claims, nil
}

// Auth requires a valid bearer session token and stores its claims in the context
func Auth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			response.Error(c, http.StatusUnauthorized, "Missing session token", nil)
			c.Abort()
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid session token", err)
			c.Abort()
			return
		}

		c.Set(SessionKey, claims.SessionID)
		c.Set(CompanyKey, claims.CompanyID)
		c.Next()
	}
}
