package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// AccountID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type      string `json:"type"`      // subscribe | unsubscribe | ping
	AccountID string `json:"accountId"` // requerido em subscribe/unsubscribe
}

// ServerMsg é a resposta de controle do hub (pong, subscribed, unsubscribed, error)
type ServerMsg struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId,omitempty"`
	Error     string `json:"error,omitempty"`
}
