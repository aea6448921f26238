// Package catalog holds token and venue metadata used by the heuristics,
// the calldata encoder and the price poller.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Token describes an ERC-20 token the pipeline knows about.
type Token struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals int32  `yaml:"decimals" json:"decimals"`
	Stable   bool   `yaml:"stable" json:"stable"`
	Major    bool   `yaml:"major" json:"major"`
	// Native marks the wrapped native asset (WETH on Arbitrum).
	Native bool `yaml:"native" json:"native"`
	// CurveIndex is the coin index in the default Curve pool, -1 if absent.
	CurveIndex int `yaml:"curve_index" json:"curveIndex"`
}

// Pool is a pool the poller reads prices from.
type Pool struct {
	Address string `yaml:"address" json:"address"`
	TokenA  string `yaml:"token_a" json:"tokenA"`
	TokenB  string `yaml:"token_b" json:"tokenB"`
	// Kind selects the on-chain reader: "uniswap-v3" (slot0) or "v2" (getReserves).
	Kind string `yaml:"kind" json:"kind"`
}

// Venue describes a DEX.
type Venue struct {
	Name   string  `yaml:"name" json:"name"`
	Fee    float64 `yaml:"fee" json:"fee"`
	Router string  `yaml:"router" json:"router"`
	Pools  []Pool  `yaml:"pools" json:"pools"`
}

// Catalog indexes tokens by lower-cased address and venues by name.
type Catalog struct {
	tokens map[string]Token
	venues map[string]Venue
	order  []string
}

type fileToken struct {
	Symbol     string `yaml:"symbol"`
	Address    string `yaml:"address"`
	Decimals   int32  `yaml:"decimals"`
	Stable     bool   `yaml:"stable"`
	Major      bool   `yaml:"major"`
	Native     bool   `yaml:"native"`
	CurveIndex *int   `yaml:"curve_index"`
}

type file struct {
	Tokens []fileToken `yaml:"tokens"`
	Venues []Venue     `yaml:"venues"`
}

// New builds a catalog from explicit token and venue lists.
func New(tokens []Token, venues []Venue) *Catalog {
	c := &Catalog{
		tokens: make(map[string]Token, len(tokens)),
		venues: make(map[string]Venue, len(venues)),
	}
	for _, t := range tokens {
		c.tokens[strings.ToLower(t.Address)] = t
	}
	for _, v := range venues {
		if _, ok := c.venues[v.Name]; !ok {
			c.order = append(c.order, v.Name)
		}
		c.venues[v.Name] = v
	}
	return c
}

// LoadFile reads a YAML catalog. Entries in the file replace the defaults
// with the same address or venue name; everything else is kept.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	parsed := make([]Token, 0, len(f.Tokens))
	for i, ft := range f.Tokens {
		if ft.Address == "" {
			return nil, fmt.Errorf("catalog: token %d (%s): missing address", i, ft.Symbol)
		}
		t := Token{
			Symbol:     ft.Symbol,
			Address:    ft.Address,
			Decimals:   ft.Decimals,
			Stable:     ft.Stable,
			Major:      ft.Major,
			Native:     ft.Native,
			CurveIndex: -1,
		}
		if t.Decimals <= 0 {
			t.Decimals = 18
		}
		if ft.CurveIndex != nil {
			t.CurveIndex = *ft.CurveIndex
		}
		parsed = append(parsed, t)
	}
	for i, v := range f.Venues {
		if v.Name == "" {
			return nil, fmt.Errorf("catalog: venue %d: missing name", i)
		}
	}
	d := Default()
	tokens := d.Tokens()
	tokens = append(tokens, parsed...)
	venues := d.Venues()
	venues = append(venues, f.Venues...)
	return New(tokens, venues), nil
}

// Token looks up a token by address, case-insensitively.
func (c *Catalog) Token(addr string) (Token, bool) {
	t, ok := c.tokens[strings.ToLower(addr)]
	return t, ok
}

// TokenBySymbol finds a token by symbol.
func (c *Catalog) TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range c.tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

func (c *Catalog) IsStable(addr string) bool {
	t, ok := c.Token(addr)
	return ok && t.Stable
}

func (c *Catalog) IsMajor(addr string) bool {
	t, ok := c.Token(addr)
	return ok && t.Major
}

func (c *Catalog) IsNative(addr string) bool {
	t, ok := c.Token(addr)
	return ok && t.Native
}

// Decimals returns the token's decimals, 18 when unknown.
func (c *Catalog) Decimals(addr string) int32 {
	if t, ok := c.Token(addr); ok {
		return t.Decimals
	}
	return 18
}

// CurveIndex returns the token's coin index in the default Curve pool.
func (c *Catalog) CurveIndex(addr string) (int, bool) {
	t, ok := c.Token(addr)
	if !ok || t.CurveIndex < 0 {
		return 0, false
	}
	return t.CurveIndex, true
}

// Venue looks up a venue by name.
func (c *Catalog) Venue(name string) (Venue, bool) {
	v, ok := c.venues[name]
	return v, ok
}

// VenueFees returns venue name to fee.
func (c *Catalog) VenueFees() map[string]float64 {
	out := make(map[string]float64, len(c.venues))
	for name, v := range c.venues {
		out[name] = v.Fee
	}
	return out
}

// Router returns the router address for a venue.
func (c *Catalog) Router(venue string) (string, bool) {
	v, ok := c.venues[venue]
	if !ok || v.Router == "" {
		return "", false
	}
	return v.Router, true
}

// Tokens returns all known tokens.
func (c *Catalog) Tokens() []Token {
	out := make([]Token, 0, len(c.tokens))
	for _, t := range c.tokens {
		out = append(out, t)
	}
	return out
}

// Venues returns venues in insertion order.
func (c *Catalog) Venues() []Venue {
	out := make([]Venue, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.venues[name])
	}
	return out
}
