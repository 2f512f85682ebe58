package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsListener delivers documents pushed over one websocket connection.
type wsListener struct {
	conn   *ws.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (l *wsListener) Close() error {
	l.once.Do(func() {
		l.cancel()
		l.conn.Close(ws.StatusNormalClosure, "listener closed")
	})
	<-l.done
	return nil
}

func (s *HTTPStore) listenURL(target WatchTarget) (string, error) {
	u, err := url.Parse(s.baseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("parse listen url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	q.Set("collection", target.Collection)
	if target.ID != "" {
		q.Set("id", target.ID)
	} else if target.Query != nil {
		value, err := json.Marshal(target.Query.Value)
		if err != nil {
			return "", fmt.Errorf("marshal watch value: %w", err)
		}
		q.Set("field", target.Query.Field)
		q.Set("op", string(target.Query.Op))
		q.Set("value", string(value))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Watch subscribes to pushed changes. Every change delivers the whole
// document to fn, in arrival order, until the listener is closed or ctx ends.
func (s *HTTPStore) Watch(ctx context.Context, target WatchTarget, fn func(Document)) (Listener, error) {
	endpoint, err := s.listenURL(target)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if s.token != nil {
		if tok := s.token(ctx); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := ws.Dial(ctx, endpoint, &ws.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("watch %s: %w", target.Collection, ErrUnauthenticated)
		}
		return nil, &TransportError{Op: "watch " + target.Collection, Err: err}
	}
	conn.SetReadLimit(1 << 20)

	ctx, cancel := context.WithCancel(ctx)
	l := &wsListener{conn: conn, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		defer conn.CloseNow()
		for {
			var doc Document
			if err := wsjson.Read(ctx, conn, &doc); err != nil {
				return
			}
			if doc.Collection == "" {
				doc.Collection = target.Collection
			}
			if ctx.Err() != nil {
				return
			}
			fn(doc)
		}
	}()

	return l, nil
}

var _ DocumentStore = (*HTTPStore)(nil)
