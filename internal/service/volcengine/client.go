package volcengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrMissingCredentials means the app id or access token is empty.
var ErrMissingCredentials = errors.New("volcengine: app id and access token are required")

var api = sonic.ConfigStd

// Credentials authenticate against the openspeech gateway.
type Credentials struct {
	AppID       string
	AccessToken string
}

func (c Credentials) validate() (Credentials, error) {
	c.AppID = strings.TrimSpace(c.AppID)
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	if c.AppID == "" || c.AccessToken == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return c, nil
}

func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 30 * time.Second,
	}
}

// dial opens one request-scoped connection. The connection is closed as soon
// as ctx ends so blocked reads return.
func dial(ctx context.Context, d *websocket.Dialer, endpoint string, creds Credentials, resourceID string, log *zap.Logger) (*websocket.Conn, func(), error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", creds.AppID)
	header.Set("X-Api-Access-Key", creds.AccessToken)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := d.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, nil, fmt.Errorf("volcengine: dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("volcengine: dial %s: %w", endpoint, err)
	}
	if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
		log.Debug("volcengine connected", zap.String("logid", logID), zap.String("connect_id", connectID))
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	release := func() {
		stop()
		_ = conn.Close()
	}
	return conn, release, nil
}

func writeFrame(conn *websocket.Conn, f *Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func readFrame(ctx context.Context, conn *websocket.Conn) (*Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("volcengine: read: %w", err)
	}
	return ParseFrame(data)
}

// serverError turns an error frame into a Go error.
func serverError(f *Frame) error {
	body, err := f.Body()
	if err != nil {
		return fmt.Errorf("volcengine: error frame %d (undecodable body: %v)", f.ErrorCode, err)
	}
	return fmt.Errorf("volcengine: error %d: %s", f.ErrorCode, strings.TrimSpace(string(body)))
}
