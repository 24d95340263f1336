package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/wager-wallet/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// client serializa escritas: gorilla aceita um único writer por conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(b)
}

// Hub gerencia conexões WebSocket e assinaturas de saldo por conta
// subs: mapeia accountID para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Cada cliente pode se inscrever em várias contas.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.AccountID == "" {
				_ = c.writeJSON(ServerMsg{Type: "error", Error: "accountId required"})
				continue
			}
			h.subscribe(c, msg.AccountID)
			_ = c.writeJSON(ServerMsg{Type: "subscribed", AccountID: msg.AccountID})
		case "unsubscribe":
			h.unsubscribe(c, msg.AccountID)
			_ = c.writeJSON(ServerMsg{Type: "unsubscribed", AccountID: msg.AccountID})
		case "ping":
			_ = c.writeJSON(ServerMsg{Type: "pong"})
		default:
			_ = c.writeJSON(ServerMsg{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(c *client, accountID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[accountID]; !ok {
		h.subs[accountID] = make(map[*client]struct{})
	}
	h.subs[accountID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, accountID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[accountID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, accountID)
		}
	}
}

// drop remove o cliente de todas as assinaturas ao desconectar
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Subscribers retorna quantos clientes acompanham a conta
func (h *Hub) Subscribers(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}

// Broadcast envia o saldo atualizado para os clientes inscritos na conta
func (h *Hub) Broadcast(update events.BalanceUpdate) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.subs[update.AccountID]))
	for c := range h.subs[update.AccountID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	b, err := json.Marshal(struct {
		Type string `json:"type"`
		events.BalanceUpdate
	}{Type: "balance", BalanceUpdate: update})
	if err != nil {
		return
	}
	for _, c := range clients {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("account_id", update.AccountID), zap.Error(err))
		}
	}
}
