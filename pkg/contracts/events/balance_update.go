package events

// Payload publicado no canal Redis de saldo e repassado aos clientes WebSocket.
// Clientes descartam updates com seq menor ou igual ao último recebido da conta.
type BalanceUpdate struct {
	AccountID string `json:"accountId"`
	Balance   string `json:"balance"`
	RecordID  int64  `json:"recordId"`
	Seq       int64  `json:"seq"`
}
