package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	tokengate "github.com/macropulse/tokengate"
	"github.com/sirupsen/logrus"
)

// Close codes for handshake rejection. They let a well-behaved client tell
// "I never sent a credential" apart from "my credential is no longer good"
// apart from "the server could not decide", without the server leaking
// which validation step failed.
const (
	// CloseNoCredential: the connection URI carried no token parameter.
	CloseNoCredential = 4401
	// CloseInvalidCredential: the token failed validation (malformed,
	// expired, blacklisted, superseded, or the principal is inactive).
	CloseInvalidCredential = 4403
	// CloseInternalFault: the store or provider could not answer inside
	// the handshake bound. The attempt is still rejected, fail closed.
	CloseInternalFault = websocket.CloseInternalServerErr
)

// Envelope is the wire format for every server-to-client frame.
type Envelope struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Gate is the connection-path gate. Each inbound websocket attempt runs the
// handshake state machine: validate the token carried as a `token` query
// parameter, then either close with a terminal code before any message
// handling starts, or enter Open bound to the authenticated subject for the
// connection's whole lifetime. Tokens are checked once, at handshake; a
// revocation mid-connection does not tear the connection down.
//
// Every connection runs on its own goroutine, so one stalled handshake
// never delays another; the store and provider lookups are additionally
// bounded by the engine's handshake timeout.
type Gate struct {
	engine   *tokengate.Engine
	hub      *Hub
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewGate wires the gate. A nil logger falls back to the logrus standard
// logger.
func NewGate(engine *tokengate.Engine, hub *Hub, log *logrus.Logger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{
		engine: engine,
		hub:    hub,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth replaces origin checking; the credential, not the
			// Origin header, is what admits a connection.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler upgrades and gates inbound connection attempts.
func (g *Gate) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote an HTTP error; nothing was opened.
			return
		}

		if raw == "" {
			g.log.Warn("websocket attempt without credential")
			g.reject(conn, CloseNoCredential, "no credential supplied")
			return
		}

		res, err := g.authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, tokengate.ErrBackendUnavailable) {
				g.log.WithError(err).Error("websocket handshake backend fault")
				g.reject(conn, CloseInternalFault, "authentication unavailable")
				return
			}
			g.log.Warn("websocket attempt with invalid credential")
			g.reject(conn, CloseInvalidCredential, "invalid credential")
			return
		}

		g.open(newSession(res.SubjectID, conn))
	})
}

// authenticate validates the token within the handshake bound and requires
// an access token; a refresh token is not a connection credential.
func (g *Gate) authenticate(ctx context.Context, raw string) (*tokengate.AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.engine.HandshakeTimeout())
	defer cancel()

	res, err := g.engine.Validate(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tokengate.ErrBackendUnavailable
		}
		return nil, err
	}
	if res.Kind != tokengate.KindAccess {
		return nil, tokengate.ErrUnauthorized
	}
	return res, nil
}

// reject closes the transport with a terminal code before any message loop
// starts. There is no partial-open state: a rejected connection never
// reaches the hub.
func (g *Gate) reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// open runs the Open state: hub membership, welcome payload, then the
// message loop until peer disconnect or an unrecoverable fault. All exit
// paths release the membership.
func (g *Gate) open(s *Session) {
	g.hub.register(s)
	g.log.WithField("subject", s.SubjectID).Info("websocket connection established")

	defer func() {
		g.hub.unregister(s)
		_ = s.conn.Close()
		g.log.WithField("subject", s.SubjectID).Info("websocket connection closed")
	}()

	if err := s.send(Envelope{
		Type:      "welcome",
		Message:   "welcome " + s.SubjectID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var content json.RawMessage
		if err := json.Unmarshal(data, &content); err != nil {
			if sendErr := s.send(Envelope{
				Type:      "error",
				Message:   "invalid JSON format",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}); sendErr != nil {
				return
			}
			continue
		}

		if err := s.send(Envelope{
			Type:      "echo",
			Content:   content,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}
	}
}
