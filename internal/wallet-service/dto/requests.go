package dto

import (
	"encoding/json"
	"strings"
)

// Decimal aceita o valor como string JSON ("50.00") ou número (50.00).
// O texto recebido é preservado; a validação de escala fica com o engine.
type Decimal string

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*d = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*d = Decimal(v)
	default:
		*d = Decimal(s)
	}
	return nil
}

type DepositRequest struct {
	Amount Decimal `json:"amount"`
}

type PlaceBetRequest struct {
	Wager Decimal `json:"wager"`
}
