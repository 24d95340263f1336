// Package money implementa valores monetários em ponto fixo (escala 4).
//
// Money guarda unidades inteiras de 1/10000 da unidade de exibição. Toda a
// aritmética do ledger passa por aqui; nunca por float64.
package money

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale é o número fixo de casas decimais dos valores do ledger
const Scale = 4

const unitsPerWhole = 10000

// maxUnits é o maior módulo que cabe em NUMERIC(18,4): 99999999999999.9999.
// A soma de dois valores na faixa nunca estoura int64.
const maxUnits = 1_000_000_000_000_000_000 - 1

// ErrInvalid indica string mal formada ou com mais de Scale casas decimais
var ErrInvalid = errors.New("invalid money value")

// ErrOutOfRange indica resultado fora de NUMERIC(18,4); casa com ErrInvalid via errors.Is
var ErrOutOfRange = fmt.Errorf("%w: out of range", ErrInvalid)

// Zero é o valor nulo
var Zero = Money{}

// Max é o maior valor representável no ledger
var Max = Money{units: maxUnits}

// Money é um decimal de ponto fixo com escala 4, baseado em int64.
// Parse, FromDecimal, CheckedAdd e Mul garantem a faixa de NUMERIC(18,4).
type Money struct {
	units int64
}

// FromUnits constrói um Money a partir de unidades mínimas (1/10000)
func FromUnits(units int64) Money { return Money{units: units} }

// Units retorna o valor em unidades mínimas
func (m Money) Units() int64 { return m.units }

// Parse converte uma string decimal simples ("10", "-0.5", "150.0000").
// Notação exponencial e mais de 4 casas significativas são rejeitadas.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if !plainDecimal(s) {
		return Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return FromDecimal(d)
}

// MustParse é Parse para constantes; entra em pânico se s for inválida
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converte sem arredondar: falha se d tiver mais de 4 casas
// significativas ou não couber em int64.
func FromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Shift(Scale)
	if !scaled.IsInteger() {
		return Zero, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalid, d.String(), Scale)
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() || !inRange(bi.Int64()) {
		return Zero, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return Money{units: bi.Int64()}, nil
}

// Decimal retorna o valor exato como decimal.Decimal
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.units, -Scale) }

func inRange(units int64) bool { return units >= -maxUnits && units <= maxUnits }

// InRange informa se o valor cabe em NUMERIC(18,4)
func (m Money) InRange() bool { return inRange(m.units) }

// Add soma sem verificar faixa; use CheckedAdd quando o resultado vai para o ledger
func (m Money) Add(o Money) Money { return Money{units: m.units + o.units} }

// CheckedAdd soma e falha com ErrOutOfRange se o resultado sair da faixa
func (m Money) CheckedAdd(o Money) (Money, error) {
	if !m.InRange() || !o.InRange() {
		return Zero, fmt.Errorf("%w: %s + %s", ErrOutOfRange, m, o)
	}
	r := Money{units: m.units + o.units}
	if !r.InRange() {
		return Zero, fmt.Errorf("%w: %s + %s", ErrOutOfRange, m, o)
	}
	return r, nil
}

func (m Money) Sub(o Money) Money { return Money{units: m.units - o.units} }

func (m Money) Neg() Money { return Money{units: -m.units} }

// Cmp compara três vias: -1 se m < o, 0 se iguais, +1 se m > o
func (m Money) Cmp(o Money) int {
	switch {
	case m.units < o.units:
		return -1
	case m.units > o.units:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.units == 0 }
func (m Money) IsPositive() bool { return m.units > 0 }
func (m Money) IsNegative() bool { return m.units < 0 }

// Mul multiplica por um fator decimal, arredondando uma única vez para a
// escala 4 (meio para cima, simétrico em negativos). O produto é calculado
// em precisão arbitrária; fora da faixa retorna ErrOutOfRange.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	return FromDecimal(m.Decimal().Mul(factor).Round(Scale))
}

// MulRat multiplica por num/den com o mesmo arredondamento de Mul.
// den igual a zero é erro de programação.
func (m Money) MulRat(num, den int64) (Money, error) {
	if den == 0 {
		panic("money: zero denominator")
	}
	p := decimal.NewFromInt(m.units).Mul(decimal.NewFromInt(num))
	return FromDecimal(p.DivRound(decimal.NewFromInt(den), 0).Shift(-Scale))
}

// String formata com exatamente 4 casas, ex: "150.0000"
func (m Money) String() string { return m.Decimal().StringFixed(Scale) }

// MarshalJSON serializa como string decimal para não perder precisão no cliente
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON aceita tanto "10.50" quanto 10.50
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Scan lê colunas NUMERIC (o driver entrega texto)
func (m *Money) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	case int64:
		if v > maxUnits/unitsPerWhole || v < -maxUnits/unitsPerWhole {
			return fmt.Errorf("money: scan %d: %w", v, ErrOutOfRange)
		}
		*m = Money{units: v * unitsPerWhole}
		return nil
	case nil:
		*m = Zero
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value grava como texto decimal, aceito por colunas NUMERIC
func (m Money) Value() (driver.Value, error) { return m.String(), nil }

func plainDecimal(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
