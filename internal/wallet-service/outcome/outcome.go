// Package outcome sorteia o resultado de uma aposta com probabilidade fixa
package outcome

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

const (
	// WinProbability é a chance de vitória em pontos percentuais (sorteio em [1,100])
	WinProbability = 40
	drawMax        = 100
)

// winMultiplier é o múltiplo pago sobre a aposta em caso de vitória
var winMultiplier = decimal.New(15, -1)

// WinMultiplier retorna o múltiplo de pagamento (1.5)
func WinMultiplier() decimal.Decimal { return winMultiplier }

// Outcome é o resultado efêmero de uma aposta
type Outcome struct {
	Won    bool
	Payout money.Money
}

// Generator sorteia resultados; draw deve retornar um inteiro uniforme em [1,100]
type Generator struct {
	draw func() int
}

// New usa math/rand, seguro para uso concorrente
func New() *Generator {
	return NewWithDraw(func() int { return rand.Intn(drawMax) + 1 })
}

// NewWithDraw permite injetar o sorteio (testes, replays)
func NewWithDraw(draw func() int) *Generator {
	return &Generator{draw: draw}
}

func (g *Generator) Simulate(wager money.Money) (Outcome, error) {
	return Resolve(g.draw(), wager)
}

// Resolve é a função pura: sorteio <= 40 paga wager * 1.5.
// Falha se o prêmio sair da faixa do ledger; nunca retorna prêmio negativo.
func Resolve(draw int, wager money.Money) (Outcome, error) {
	if draw > WinProbability {
		return Outcome{Won: false, Payout: money.Zero}, nil
	}
	payout, err := wager.Mul(winMultiplier)
	if err != nil {
		return Outcome{}, fmt.Errorf("payout for %s: %w", wager, err)
	}
	return Outcome{Won: true, Payout: payout}, nil
}

// Always retorna um sorteio fixo; útil para forçar vitória (1) ou derrota (100)
func Always(draw int) func() int {
	return func() int { return draw }
}
