package channel

import (
	"context"

	"nhooyr.io/websocket"
)

// audio_chunk payloads can run large once base64-encoded.
const wsReadLimit = 1 << 22

type wsSocket struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// DialWebsocket is the production Dialer.
func DialWebsocket(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(wsReadLimit)

	sockCtx, cancel := context.WithCancel(context.Background())
	return &wsSocket{conn: conn, ctx: sockCtx, cancel: cancel}, nil
}

func (s *wsSocket) Write(data []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *wsSocket) Read() ([]byte, error) {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, ErrCleanClose
		}
		return nil, err
	}
	return data, nil
}

func (s *wsSocket) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
