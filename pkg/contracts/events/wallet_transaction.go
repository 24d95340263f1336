package events

import "time"

// Evento publicado no tópico "wallet_transactions" para cada lançamento confirmado.
// Valores monetários trafegam como string decimal com 4 casas.
// Seq é contíguo por conta e segue a ordem de commit; RecordID não garante isso.
type WalletTransaction struct {
	EventID      string    `json:"event_id"`
	RecordID     int64     `json:"record_id"`
	AccountID    string    `json:"account_id"`
	Seq          int64     `json:"seq"`
	Kind         string    `json:"kind"` // "deposit" | "bet" | "win"
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
	TsUnixMs     int64     `json:"ts_unix_ms"`
}
