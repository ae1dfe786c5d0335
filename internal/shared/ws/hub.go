package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"rodae/internal/shared/logger"
	"rodae/internal/shared/utils"

	"github.com/gorilla/websocket"
)

const (
	// клиент обязан прислать {"token": "..."} первым сообщением
	authTimeout    = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var errRoleNotAllowed = errors.New("role not allowed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AuthFunc валидирует токен и возвращает userID и роль
type AuthFunc func(token string) (userID, role string, err error)

// Client — одно аутентифицированное соединение
type Client struct {
	ID     string
	UserID string
	Role   string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub хранит активные соединения и доставляет сообщения пользователям.
// Входящие сообщения клиентов не обрабатываются, кроме ping/pong.
type Hub struct {
	clients    map[string]*Client
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // закрывается, когда Run вышел
	allowRoles map[string]struct{}
	authFunc   AuthFunc
	log        *logger.Logger
}

// NewHub создает хаб. Если roles не пусты, подключаться могут только эти роли.
func NewHub(authFunc AuthFunc, log *logger.Logger, roles ...string) *Hub {
	allow := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allow[r] = struct{}{}
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		allowRoles: allow,
		authFunc:   authFunc,
		log:        log,
	}
}

// Run — главный цикл регистрации; должен работать в отдельной горутине.
// После выхода новые соединения отклоняются, а оставшиеся закрываются.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.log.Info(logger.Entry{Action: "hub_stopped", Message: "websocket hub stopped"})
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			h.log.Info(logger.Entry{
				Action:     "client_registered",
				Message:    c.ID,
				Additional: map[string]any{"user_id": c.UserID, "role": c.Role},
			})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug(logger.Entry{Action: "client_unregistered", Message: c.ID})
		}
	}
}

// Done закрывается после остановки Run
func (h *Hub) Done() <-chan struct{} { return h.done }

// SendToUser кладет сообщение в очередь всех соединений пользователя.
// Возвращает количество соединений, принявших сообщение.
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		if c.UserID != userID {
			continue
		}
		select {
		case c.send <- message:
			delivered++
		default:
			h.log.Warn(logger.Entry{
				Action:     "ws_send_buffer_full",
				Message:    userID,
				Additional: map[string]any{"client_id": c.ID},
			})
		}
	}
	return delivered
}

// SendToUserJSON сериализует data и отправляет пользователю
func (h *Hub) SendToUserJSON(userID string, data any) (int, error) {
	msg, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	return h.SendToUser(userID, msg), nil
}

func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// ServeWS апгрейдит соединение и ждет токен первым сообщением
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(logger.Entry{
			Action:  "ws_upgrade_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	var authMsg struct {
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth timeout"))
		_ = conn.Close()
		h.log.Warn(logger.Entry{Action: "ws_auth_failed", Message: "no auth message received"})
		return
	}

	userID, role, err := h.authFunc(authMsg.Token)
	if err == nil && !h.roleAllowed(role) {
		err = errRoleNotAllowed
	}
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": "unauthorized"})
		_ = conn.Close()
		h.log.Warn(logger.Entry{
			Action:  "ws_auth_rejected",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}

	c := &Client{
		ID:     "ws_" + utils.NewUUID(),
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	_ = conn.WriteJSON(map[string]string{"status": "authenticated", "user_id": userID})

	go c.writePump()
	go c.readPump()
}

// add передает клиента в Run; false — хаб уже остановлен
func (h *Hub) add(c *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) roleAllowed(role string) bool {
	if len(h.allowRoles) == 0 {
		return true
	}
	_, ok := h.allowRoles[role]
	return ok
}

// readPump нужен только для pong и обнаружения закрытия соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn(logger.Entry{
					Action:  "ws_read_error",
					Message: c.ID,
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.hub.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
