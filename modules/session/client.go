package session

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// Client - 세션에 연결된 WebSocket 클라이언트
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(id string, conn *websocket.Conn) *Client {
	if id == "" {
		id = uuid.NewString()
	}
	return &Client{id: id, conn: conn, send: make(chan []byte, sendBuffer)}
}

// HandleWebSocket - GET /ws?session=<id>[&client=<id>]
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [Session] WebSocket upgrade failed: %v", err)
		return
	}

	client := newClient(r.URL.Query().Get("client"), conn)
	s := m.GetOrCreate(sessionID)
	m.connected()

	go client.writePump()
	n := s.addClient(client)
	log.Printf("👤 [Session] Client %s joined session %s (Clients: %d)", client.id, sessionID, n)

	go client.readPump(s)
}

// readPump - 클라이언트 메시지 읽기. 연결이 끊기면 세션에서 제거
func (c *Client) readPump(s *Session) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  [Session] WebSocket error: %v", err)
			}
			return
		}

		s.touch()
		switch msg.Type {
		case TypeRequestView:
			v := s.ctrl.View()
			s.sendTo(c, Message{Type: TypeView, SessionID: s.id, View: &v})
		default:
			log.Printf("⚠️  [Session] Unknown message type %q from %s", msg.Type, c.id)
		}
	}
}

// writePump - send 채널을 소켓으로 전달. 채널이 닫히면 종료
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("⚠️  [Session] WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
