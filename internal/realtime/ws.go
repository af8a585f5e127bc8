package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	authTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// envelope is the wire format in both directions.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type authenticateMessage struct {
	Event string `json:"event"`
	Data  struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	} `json:"data"`
}

type wsConnection struct {
	id   string
	conn *websocket.Conn
}

func (c *wsConnection) ID() string { return c.id }

func (c *wsConnection) Send(ctx context.Context, event string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, envelope{Event: event, Data: payload})
}

func (c *wsConnection) Close(reason string) error {
	return c.conn.Close(websocket.StatusPolicyViolation, reason)
}

// Server upgrades HTTP requests to websocket connections. The first client
// message must be an authenticate event carrying userId and token.
type Server struct {
	channel        *BrowserChannel
	log            logrus.FieldLogger
	originPatterns []string
}

func NewServer(channel *BrowserChannel, log logrus.FieldLogger, originPatterns []string) *Server {
	return &Server{channel: channel, log: log, originPatterns: originPatterns}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer c.CloseNow()

	conn := &wsConnection{id: uuid.NewString(), conn: c}
	ctx := r.Context()

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	var msg authenticateMessage
	err = wsjson.Read(authCtx, c, &msg)
	cancel()
	if err != nil || msg.Event != "authenticate" {
		c.Close(websocket.StatusPolicyViolation, "authenticate first")
		return
	}

	if err := s.channel.Authenticate(ctx, conn, msg.Data.UserID, msg.Data.Token); err != nil {
		c.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	defer s.channel.Disconnect(conn)

	for {
		var in envelope
		if err := wsjson.Read(ctx, c, &in); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.log.WithField("connection_id", conn.id).WithError(err).Debug("websocket read ended")
			}
			return
		}
		if in.Event == "ping" {
			_ = conn.Send(ctx, "pong", nil)
		}
	}
}
