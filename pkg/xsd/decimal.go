package xsd

import (
	"math/big"
	"strings"
)

// Decimal is an arbitrary-precision fixed-point number, backed by
// math/big.Rat so that arithmetic never loses precision the way a
// float64-backed decimal would (the teacher's prototype stored decimals
// as float64, which is fine for the inline dictionary encoding fast path
// but not for arithmetic — this type is what the expression evaluator
// promotes through for +,-,*,/ and comparisons on xsd:decimal operands).
type Decimal struct {
	r *big.Rat
}

// ParseDecimal parses an xsd:decimal lexical form.
func ParseDecimal(s string) (Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, false
	}
	return Decimal{r: r}, true
}

func NewDecimalFromInt(i int64) Decimal { return Decimal{r: new(big.Rat).SetInt64(i)} }

func (d Decimal) Add(o Decimal) Decimal { return Decimal{r: new(big.Rat).Add(d.r, o.r)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{r: new(big.Rat).Sub(d.r, o.r)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{r: new(big.Rat).Mul(d.r, o.r)} }

// Div returns ok=false on division by zero, matching SPARQL's local
// error-recovery rule (the caller turns that into an unbound result).
func (d Decimal) Div(o Decimal) (Decimal, bool) {
	if o.r.Sign() == 0 {
		return Decimal{}, false
	}
	return Decimal{r: new(big.Rat).Quo(d.r, o.r)}, true
}

func (d Decimal) Neg() Decimal { return Decimal{r: new(big.Rat).Neg(d.r)} }

// Cmp returns -1, 0, or 1.
func (d Decimal) Cmp(o Decimal) int { return d.r.Cmp(o.r) }

func (d Decimal) Sign() int { return d.r.Sign() }

func (d Decimal) Float64() float64 {
	f, _ := d.r.Float64()
	return f
}

// String renders a canonical decimal lexical form (always has a decimal
// point, matching the teacher's NewDecimalLiteral convention).
func (d Decimal) String() string {
	s := d.r.FloatString(18)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}
