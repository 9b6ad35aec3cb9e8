package domain

import "fmt"

// Pair is a currency pair an exchange rate is quoted for.
type Pair struct {
	// From is the currency being priced.
	From string
	// To is the currency the price is expressed in.
	To string
}

// NewPair builds a pair from two currency symbols.
func NewPair(from, to string) Pair {
	return Pair{From: NormalizeCurrency(from), To: NormalizeCurrency(to)}
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. BTCEUR.
func (p Pair) Symbol() string {
	return p.From + p.To
}

// Inverse returns the pair quoted the other way around.
func (p Pair) Inverse() Pair {
	return Pair{From: p.To, To: p.From}
}
