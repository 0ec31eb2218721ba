package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	maxFrameBytes       = 16 << 10
	defaultSendQueue    = 64
	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
)

var errMalformedFrame = errors.New("malformed frame")

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uint64, error)
}

// GatewayConfig tunes the WebSocket endpoint.
type GatewayConfig struct {
	// OriginPatterns are host patterns accepted for cross-origin upgrades.
	OriginPatterns []string
	SendQueue      int
	WriteTimeout   time.Duration
	ReadIdle       time.Duration
}

// Gateway upgrades HTTP requests to comment sockets and routes their frames
// to a CommentHub.
type Gateway struct {
	log      *slog.Logger
	comments *CommentHub
	auth     Authenticator
	cfg      GatewayConfig
}

func NewGateway(log *slog.Logger, comments *CommentHub, auth Authenticator, cfg GatewayConfig) *Gateway {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadIdle <= 0 {
		cfg.ReadIdle = defaultReadIdle
	}
	return &Gateway{log: log, comments: comments, auth: auth, cfg: cfg}
}

// accessToken reads the access_token cookie, then the token query parameter.
func accessToken(r *http.Request) string {
	if ck, err := r.Cookie("access_token"); err == nil && ck.Value != "" {
		return ck.Value
	}
	return r.URL.Query().Get("token")
}

// identify returns the caller's user id, or zero when the token is absent
// or rejected. Rejected tokens still get a read-only connection.
func (g *Gateway) identify(r *http.Request) uint64 {
	tok := accessToken(r)
	if tok == "" || g.auth == nil {
		return 0
	}
	uid, err := g.auth.Authenticate(r.Context(), tok)
	if err != nil {
		g.log.Debug("ws.auth.anonymous", "err", err)
		return 0
	}
	return uid
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid := g.identify(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.cfg.OriginPatterns})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err, "origin", r.Header.Get("Origin"))
		return
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(uuid.NewString(), uid, g.cfg.SendQueue)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	hub := g.comments.Hub()
	defer func() {
		hub.LeaveAll(client.ID)
		client.Close()
	}()

	g.log.Info("ws.connected", "client_id", client.ID, "user_id", uid)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case payload := <-client.Send:
				wctx, wcancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, payload)
				wcancel()
				if err != nil {
					g.log.Info("ws.write.fail", "client_id", client.ID, "err", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		rctx, rcancel := context.WithTimeout(ctx, g.cfg.ReadIdle)
		in, err := readInbound(rctx, conn)
		rcancel()
		if err != nil {
			if errors.Is(err, errMalformedFrame) {
				_ = hub.Send(client, errorFrame(EventError, "invalid JSON"))
				continue
			}
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				g.log.Info("ws.read.fail", "client_id", client.ID, "err", err)
			}
			break
		}
		g.dispatch(ctx, client, in)
	}

	cancel()
	<-writerDone
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	g.log.Info("ws.disconnected", "client_id", client.ID)
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, in Inbound) {
	hub := g.comments.Hub()
	switch in.Event {
	case EventJoinPostComments, EventLeavePostComments:
		var ref PostRef
		if err := json.Unmarshal(in.Data, &ref); err != nil {
			_ = hub.Send(c, errorFrame(in.Event, "invalid payload"))
			return
		}
		if in.Event == EventLeavePostComments {
			g.comments.Leave(c, ref.PostID)
			return
		}
		if err := g.comments.Join(c, ref.PostID); err != nil {
			_ = hub.Send(c, errorFrame(in.Event, err.Error()))
		}
	case EventNewComment:
		var nc NewComment
		if err := json.Unmarshal(in.Data, &nc); err != nil {
			_ = hub.Send(c, errorFrame(in.Event, "invalid payload"))
			return
		}
		_ = g.comments.Post(ctx, c, nc)
	default:
		_ = hub.Send(c, errorFrame(EventError, fmt.Sprintf("unsupported event: %q", in.Event)))
	}
}

func readInbound(ctx context.Context, conn *websocket.Conn) (Inbound, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return Inbound{}, err
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return in, nil
}
