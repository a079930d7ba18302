package archival

import (
	"context"
	"errors"
	"net"

	"chaindrive/metrics"

	"github.com/gorilla/websocket"

	log "github.com/sirupsen/logrus"
)

var _ Feed = (*WebsocketFeed)(nil)

// WebsocketFeed is the production Feed: a websocket connection to the
// upstream notifier speaking JSON frames.
type WebsocketFeed struct {
	endpoint string
	conn     *websocket.Conn
}

func NewWebsocketFeed(endpoint string) *WebsocketFeed {
	return &WebsocketFeed{endpoint: endpoint}
}

func (f *WebsocketFeed) Subscribe(ctx context.Context, req *SubscribeRequest) (<-chan *Batch, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return nil, err
	}
	f.conn = conn

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, err
	}

	log.Infof("archival: subscribed to %s (%s, from block %d)", f.endpoint, req.Mode, req.FromBlock)

	out := make(chan *Batch)
	go func() {
		defer close(out)
		for {
			batch := &Batch{}
			if err := conn.ReadJSON(batch); err != nil {
				// A decode error leaves the connection usable; only
				// transport errors end the subscription.
				if isTransportError(err) {
					log.Errorf("archival: feed connection lost: %v", err)
					return
				}
				log.Warnf("archival: dropping malformed feed message: %v", err)
				metrics.FeedMessagesDropped.Inc()
				continue
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func isTransportError(err error) bool {
	var closeErr *websocket.CloseError
	var netErr net.Error
	return errors.As(err, &closeErr) || errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) || websocket.IsUnexpectedCloseError(err)
}

func (f *WebsocketFeed) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
