package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ageniuscoder/mmchat/client/internal/models"
	"github.com/gorilla/websocket"
)

// Dialer opens the websocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Endpoint is the per-user channel: <wsBase>ws/users/<userID>/chat/.
func Endpoint(wsBase string, userID models.ID) string {
	return fmt.Sprintf("%sws/users/%s/chat/", wsBase, url.PathEscape(userID.String()))
}

func dial(ctx context.Context, d Dialer, endpoint, token string) (*websocket.Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := d.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("chat: dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("chat: dial %s: %w", endpoint, err)
	}
	return ws, nil
}
