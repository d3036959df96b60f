package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"AgentChat/internal/dispatcher"
	"AgentChat/internal/session"
)

// Client event types.
const (
	eventSendMessage  = "send_message"
	eventClearHistory = "clear_history"
	eventGetHistory   = "get_history"
)

// clientEnvelope is an inbound WebSocket event.
type clientEnvelope struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Backend string `json:"backend,omitempty"`
	Usecase string `json:"usecase,omitempty"`
}

// serverEnvelope is an outbound WebSocket event.
type serverEnvelope struct {
	Type         string            `json:"type"`
	SessionID    string            `json:"session_id,omitempty"`
	ReplyText    string            `json:"reply_text,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	History      []session.Message `json:"history,omitempty"`
	Timestamp    string            `json:"timestamp,omitempty"`
}

// clientConn is one WebSocket client and its session. Writes are serialized
// through writeMu because replies are produced on per-message goroutines.
type clientConn struct {
	conn      *websocket.Conn
	gateway   *Gateway
	sessionID string
	writeMu   sync.Mutex
	wg        sync.WaitGroup
}

func newClientConn(conn *websocket.Conn, g *Gateway, sessionID string) *clientConn {
	return &clientConn{conn: conn, gateway: g, sessionID: sessionID}
}

// run owns the connection: it creates the session, pumps inbound events and
// tears the session down when the client goes away. Replies that complete
// after teardown are discarded by the store, never delivered.
func (cc *clientConn) run(ctx context.Context) {
	g := cc.gateway
	store := g.dispatcher.Store()

	store.GetOrCreate(cc.sessionID)
	g.logger.Info("client connected", "session_id", cc.sessionID)
	cc.send(serverEnvelope{Type: "connected", SessionID: cc.sessionID})

	defer func() {
		store.Delete(cc.sessionID)
		cc.conn.Close()
		cc.wg.Wait()
		g.logger.Info("client disconnected", "session_id", cc.sessionID)
	}()

	for {
		_, data, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("websocket read failed", "session_id", cc.sessionID, "error", err)
			}
			return
		}

		var env clientEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.sendError(KindBadRequest, "malformed event")
			continue
		}

		switch env.Type {
		case eventSendMessage:
			cc.handleSend(ctx, env)
		case eventClearHistory:
			cc.handleClear()
		case eventGetHistory:
			cc.handleHistory()
		default:
			cc.sendError(KindBadRequest, "unknown event type: "+env.Type)
		}
	}
}

// handleSend dispatches one user message. The provider call happens on its
// own goroutine so a slow backend does not block further reads; per-session
// ordering is still enforced by the store's dispatch lock.
func (cc *clientConn) handleSend(ctx context.Context, env clientEnvelope) {
	if env.Text == "" || env.Backend == "" {
		cc.sendError(KindBadRequest, "text and backend are required")
		return
	}

	cc.wg.Add(1)
	go func() {
		defer cc.wg.Done()

		reply, err := cc.gateway.dispatcher.Handle(ctx, dispatcher.Request{
			SessionID: cc.sessionID,
			Text:      env.Text,
			Backend:   env.Backend,
			Usecase:   env.Usecase,
		})
		if err != nil {
			cc.sendError(errorKind(err), err.Error())
			return
		}

		cc.send(serverEnvelope{
			Type:      "message_response",
			SessionID: cc.sessionID,
			ReplyText: reply,
			Timestamp: timestamp(),
		})
	}()
}

func (cc *clientConn) handleClear() {
	if err := cc.gateway.dispatcher.Store().Reset(cc.sessionID); err != nil {
		cc.sendError(errorKind(err), err.Error())
		return
	}
	cc.send(serverEnvelope{Type: "history_cleared", SessionID: cc.sessionID})
}

func (cc *clientConn) handleHistory() {
	history, err := cc.gateway.dispatcher.Store().History(cc.sessionID)
	if err != nil {
		cc.sendError(errorKind(err), err.Error())
		return
	}
	cc.send(serverEnvelope{Type: "chat_history", SessionID: cc.sessionID, History: history})
}

func (cc *clientConn) sendError(kind, message string) {
	cc.send(serverEnvelope{
		Type:         "error",
		SessionID:    cc.sessionID,
		ErrorKind:    kind,
		ErrorMessage: message,
		Timestamp:    timestamp(),
	})
}

func (cc *clientConn) send(env serverEnvelope) {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	if err := cc.conn.WriteJSON(env); err != nil {
		cc.gateway.logger.Warn("websocket write failed", "session_id", cc.sessionID, "error", err)
	}
}
