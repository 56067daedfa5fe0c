package auth

import (
	"errors"
	"fmt"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoUserID = errors.New("auth: token carries no user id")

// Claims mirrors the access token issued by the chat server. Depending on
// the server build the user id is carried as userId or user_id.
type Claims struct {
	UserId    models.ID `json:"userId"`
	UserIdAlt models.ID `json:"user_id"`
	jwt.RegisteredClaims
}

// Session is the signed-in identity handed to the sync core at construction.
type Session struct {
	UserID models.ID
	Token  string
}

// SessionFromToken reads the user id out of an access token. The signature
// is not checked here; the server verifies the token on every request and
// on the websocket handshake.
func SessionFromToken(token string) (Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("auth: parse token: %w", err)
	}
	uid := claims.UserId
	if uid == "" {
		uid = claims.UserIdAlt
	}
	if uid == "" {
		return Session{}, ErrNoUserID
	}
	return Session{UserID: uid, Token: token}, nil
}
