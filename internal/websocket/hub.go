package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/domain"
)

// MessageType WebSocket事件类型
type MessageType string

const (
	MessageTypeNewMessage   MessageType = "new_message"
	MessageTypeUnreadUpdate MessageType = "unread_update"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// Event WebSocket下行事件结构
type Event struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessageData 新消息到达事件数据
type NewMessageData struct {
	MessageID   string `json:"messageId"`
	FromID      string `json:"fromId"`
	Title       string `json:"title"`
	Preview     string `json:"preview,omitempty"`
	UnreadCount int    `json:"unreadCount"`
	CreatedAt   string `json:"createdAt"`
}

// UnreadUpdateData 未读计数变化事件数据
type UnreadUpdateData struct {
	UnreadCount int `json:"unreadCount"`
}

// Client 代表一个已认证的WebSocket客户端连接。
//
// 客户端只接收自己账号的事件，无需显式订阅。
type Client struct {
	ID        string
	AccountID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	log       *zap.Logger
}

// Hub 管理全部WebSocket连接，按账号分发事件。
type Hub struct {
	clients    map[string]*Client            // clientID -> Client
	accounts   map[string]map[string]*Client // accountID -> clientID -> Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *accountEvent
	mu         sync.RWMutex
	log        *zap.Logger

	allowedOrigins []string
	tokens         *jwt.Manager
}

type accountEvent struct {
	accountID string
	event     *Event
}

// NewHub 创建WebSocket Hub。
func NewHub(allowedOrigins []string, tokens *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		clients:        make(map[string]*Client),
		accounts:       make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *accountEvent, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		tokens:         tokens,
	}
}

// Run 启动Hub主循环，ctx 取消时关闭全部连接。
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.accounts[client.AccountID] == nil {
				h.accounts[client.AccountID] = make(map[string]*Client)
			}
			h.accounts[client.AccountID][client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("accountId", client.AccountID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if clients, exists := h.accounts[client.AccountID]; exists {
					delete(clients, client.ID)
					if len(clients) == 0 {
						delete(h.accounts, client.AccountID)
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.broadcastToAccount(ev.accountID, ev.event)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// PushNewMessage 向账号的全部在线客户端推送新消息事件。
func (h *Hub) PushNewMessage(accountID string, message *domain.Message, unread int) {
	preview := message.Body
	if len(preview) > 100 {
		preview = preview[:100]
	}

	data, err := json.Marshal(NewMessageData{
		MessageID:   message.ID,
		FromID:      message.FromID,
		Title:       message.Title,
		Preview:     preview,
		UnreadCount: unread,
		CreatedAt:   message.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new message event", zap.Error(err))
		return
	}

	h.broadcast <- &accountEvent{
		accountID: accountID,
		event: &Event{
			Type:      MessageTypeNewMessage,
			Data:      data,
			Timestamp: time.Now(),
		},
	}
}

// PushUnreadUpdate 向账号推送未读计数变化事件。
func (h *Hub) PushUnreadUpdate(accountID string, unread int) {
	data, err := json.Marshal(UnreadUpdateData{UnreadCount: unread})
	if err != nil {
		return
	}
	h.broadcast <- &accountEvent{
		accountID: accountID,
		event: &Event{
			Type:      MessageTypeUnreadUpdate,
			Data:      data,
			Timestamp: time.Now(),
		},
	}
}

// broadcastToAccount 向订阅账号的全部客户端发送事件。
func (h *Hub) broadcastToAccount(accountID string, ev *Event) {
	h.mu.RLock()
	clients := h.accounts[accountID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Event{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// 跳过阻塞的客户端
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.accounts = make(map[string]map[string]*Client)
}

// authenticateClient 从URL参数或Authorization头取会话令牌并验证。
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:        uuid.New().String(),
		AccountID: claims.UserID,
		log:       h.log,
	}, nil
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 无 Origin 视为同源请求
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket 处理WebSocket连接升级。
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端上行消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}
		if ev.Type == MessageTypePong {
			c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
