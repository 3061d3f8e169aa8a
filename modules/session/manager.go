package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"flowai-video-server/modules/generation"
	"flowai-video-server/modules/upload"
)

const (
	emptyCleanupInterval   = 5 * time.Minute
	expiredCleanupInterval = 30 * time.Minute
	expiredThreshold       = 24 * time.Hour
	inactiveThreshold      = 2 * time.Hour
)

// ControllerFactory builds the upload controller for a new session.
type ControllerFactory func(sessionID string, notifier upload.Notifier, onChange func(upload.View)) *upload.Controller

// Message - WebSocket 메시지
type Message struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	ClientID  string       `json:"clientId,omitempty"`
	Message   string       `json:"message,omitempty"`
	Level     upload.Level `json:"level,omitempty"`
	View      *upload.View `json:"view,omitempty"`
}

const (
	TypeNotification = "notification"
	TypeView         = "view"
	TypeClientJoined = "client_joined"
	TypeClientLeft   = "client_left"
	TypeRequestView  = "request_view"
)

// Metrics - 서버 메트릭
type Metrics struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	StartTime        time.Time `json:"startTime"`
}

// Session is one upload form: a controller plus the sockets watching it.
type Session struct {
	id    string
	ctrl  *upload.Controller
	clock clockwork.Clock

	mu           sync.Mutex
	clients      map[string]*Client
	createdAt    time.Time
	lastActivity time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) Controller() *upload.Controller { return s.ctrl }

// Notify implements upload.Notifier by broadcasting to every client.
func (s *Session) Notify(message string, level upload.Level) {
	s.broadcast(Message{Type: TypeNotification, SessionID: s.id, Message: message, Level: level})
}

func (s *Session) broadcastView(v upload.View) {
	s.broadcast(Message{Type: TypeView, SessionID: s.id, View: &v})
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Session) addClient(c *Client) int {
	s.mu.Lock()
	// 같은 id 로 다시 연결하면 이전 소켓을 끊는다
	if old, ok := s.clients[c.id]; ok && old != c {
		close(old.send)
		log.Printf("🔁 [Session] Client %s reconnected to session %s, closing previous socket", c.id, s.id)
	}
	s.clients[c.id] = c
	s.lastActivity = s.clock.Now()
	n := len(s.clients)
	s.mu.Unlock()

	s.broadcast(Message{Type: TypeClientJoined, SessionID: s.id, ClientID: c.id})
	v := s.ctrl.View()
	s.sendTo(c, Message{Type: TypeView, SessionID: s.id, View: &v})
	return n
}

// removeClient is a no-op when c was already replaced or dropped.
func (s *Session) removeClient(c *Client) {
	id := c.id
	s.mu.Lock()
	current, ok := s.clients[id]
	ok = ok && current == c
	if ok {
		close(c.send)
		delete(s.clients, id)
		s.lastActivity = s.clock.Now()
	}
	remaining := len(s.clients)
	s.mu.Unlock()

	if !ok {
		return
	}
	log.Printf("👋 [Session] Client %s left session %s (Remaining: %d)", id, s.id, remaining)
	s.broadcast(Message{Type: TypeClientLeft, SessionID: s.id, ClientID: id})
}

// disconnectAll closes every client channel; write pumps then close the sockets.
func (s *Session) disconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		close(c.send)
		delete(s.clients, id)
		log.Printf("🔌 [Session] Disconnecting client %s from session %s", id, s.id)
	}
}

func (s *Session) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("❌ [Session] Error marshaling message: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		select {
		case c.send <- data:
		default:
			// 느린 클라이언트는 끊는다
			close(c.send)
			delete(s.clients, id)
			log.Printf("⚠️  [Session] Dropped slow client %s from session %s", id, s.id)
		}
	}
}

func (s *Session) sendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("❌ [Session] Error marshaling message: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.clients[c.id]; !ok || current != c {
		return
	}
	select {
	case c.send <- data:
	default:
		close(c.send)
		delete(s.clients, c.id)
	}
}

// Manager - 세션 관리
type Manager struct {
	newController ControllerFactory
	clock         clockwork.Clock

	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  Metrics
}

func NewManager(factory ControllerFactory, clock clockwork.Clock) *Manager {
	return &Manager{
		newController: factory,
		clock:         clock,
		sessions:      make(map[string]*Session),
		metrics:       Metrics{StartTime: clock.Now()},
	}
}

// GetOrCreate - 세션 가져오기 또는 생성
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		now := m.clock.Now()
		s = &Session{
			id:           id,
			clock:        m.clock,
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}
		s.ctrl = m.newController(id, s, s.broadcastView)
		m.sessions[id] = s

		m.metrics.TotalSessions++
		m.metrics.ActiveSessions++
		log.Printf("✅ [Session] Created new session: %s (Total: %d, Active: %d)",
			id, m.metrics.TotalSessions, m.metrics.ActiveSessions)
	}

	s.touch()
	return s
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Remove tears the session down. Unknown ids return false.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.metrics.ActiveSessions--
	}
	m.mu.Unlock()

	if ok {
		teardown(s)
		log.Printf("🗑️  [Session] Removed session %s", id)
	}
	return ok
}

func teardown(s *Session) {
	s.disconnectAll()
	s.ctrl.Reset()
}

func (m *Manager) connected() {
	m.mu.Lock()
	m.metrics.TotalConnections++
	m.mu.Unlock()
}

// CleanupEmpty drops sessions with no clients that have been idle for a full
// cleanup interval.
func (m *Manager) CleanupEmpty() int {
	now := m.clock.Now()
	var removed []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		empty := len(s.clients) == 0 && now.Sub(s.lastActivity) >= emptyCleanupInterval
		s.mu.Unlock()
		if empty {
			delete(m.sessions, id)
			m.metrics.ActiveSessions--
			removed = append(removed, s)
		}
	}
	active := m.metrics.ActiveSessions
	m.mu.Unlock()

	for _, s := range removed {
		teardown(s)
		log.Printf("🧹 [Session] Cleaned up empty session: %s", s.id)
	}
	if len(removed) > 0 {
		log.Printf("🗑️  [Session] Cleaned up %d empty sessions (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// CleanupExpired drops sessions older than 24h, and client-less sessions
// inactive for 2h.
func (m *Manager) CleanupExpired() int {
	now := m.clock.Now()
	var removed []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := now.Sub(s.createdAt) > expiredThreshold
		inactive := now.Sub(s.lastActivity) > inactiveThreshold && len(s.clients) == 0
		s.mu.Unlock()

		if expired || inactive {
			delete(m.sessions, id)
			m.metrics.ActiveSessions--
			removed = append(removed, s)

			reason := "expired"
			if !expired {
				reason = "inactive"
			}
			log.Printf("⏰ [Session] Cleaning up %s session: %s", reason, id)
		}
	}
	active := m.metrics.ActiveSessions
	m.mu.Unlock()

	for _, s := range removed {
		teardown(s)
	}
	if len(removed) > 0 {
		log.Printf("🧼 [Session] Cleaned up %d expired/inactive sessions (Active: %d)", len(removed), active)
	}
	return len(removed)
}

// StartCleanup runs both cleanup routines until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context) {
	run := func(interval time.Duration, cleanup func() int) {
		ticker := m.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				cleanup()
			}
		}
	}
	go run(emptyCleanupInterval, m.CleanupEmpty)
	go run(expiredCleanupInterval, m.CleanupExpired)

	log.Printf("🔄 [Session] Started session cleanup routines (Empty: 5min, Expired: 30min)")
}

// Shutdown tears down every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.metrics.ActiveSessions = 0
	m.mu.Unlock()

	for _, s := range sessions {
		teardown(s)
	}
	log.Printf("🛑 [Session] Shut down %d sessions", len(sessions))
}

// HandleEvent routes a generation outcome to the owning session.
func (m *Manager) HandleEvent(event generation.GenerationEvent) bool {
	m.mu.RLock()
	s, ok := m.sessions[event.SessionID]
	m.mu.RUnlock()
	if !ok {
		log.Printf("⚠️  [Session] Event for unknown session %s (job %s)", event.SessionID, event.JobID)
		return false
	}
	return s.ctrl.FinishGeneration(event.Result())
}

// ConsumeEvents applies events from ch until it closes or ctx is done.
func (m *Manager) ConsumeEvents(ctx context.Context, ch <-chan generation.GenerationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			m.HandleEvent(event)
		}
	}
}

// SessionInfo - /api/sessions 조회용 요약
type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	ClientCount  int       `json:"clientCount"`
	ImageCount   int       `json:"imageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Age          string    `json:"age"`
	Inactive     string    `json:"inactive"`
}

func (m *Manager) info(s *Session) SessionInfo {
	now := m.clock.Now()
	s.mu.Lock()
	info := SessionInfo{
		SessionID:    s.id,
		ClientCount:  len(s.clients),
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		Age:          now.Sub(s.createdAt).String(),
		Inactive:     now.Sub(s.lastActivity).String(),
	}
	s.mu.Unlock()
	info.ImageCount = len(s.ctrl.Images())
	return info
}

// Snapshot returns the metrics and per-session details.
func (m *Manager) Snapshot() (Metrics, []SessionInfo) {
	m.mu.RLock()
	metrics := m.metrics
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	details := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		details = append(details, m.info(s))
	}
	return metrics, details
}
