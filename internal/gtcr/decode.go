// Package gtcr decodes Generalized TCR item data and extracts the market
// address a curated item points at.
package gtcr

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// ColumnType is the declared type of an item column.
type ColumnType string

const (
	ColumnText ColumnType = "text"
	ColumnLink ColumnType = "link"
)

// Column describes one field of a list's items, as declared in the list's
// meta evidence.
type Column struct {
	Label string
	Type  ColumnType
}

// MarketColumns is the layout of the Omen curated markets list.
var MarketColumns = []Column{
	{Label: "Question", Type: ColumnText},
	{Label: "Market URL", Type: ColumnLink},
}

var addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// Decode splits RLP encoded item data into one string per column.
func Decode(columns []Column, data []byte) ([]string, error) {
	var items [][]byte
	if err := rlp.DecodeBytes(data, &items); err != nil {
		return nil, fmt.Errorf("%w: gtcr item rlp: %w", domain.ErrDecode, err)
	}
	if len(items) < len(columns) {
		return nil, fmt.Errorf("%w: gtcr item has %d fields, want %d", domain.ErrDecode, len(items), len(columns))
	}

	out := make([]string, len(columns))
	for i, col := range columns {
		switch col.Type {
		case ColumnText, ColumnLink:
			if !utf8.Valid(items[i]) {
				return nil, fmt.Errorf("%w: gtcr column %q is not utf-8", domain.ErrDecode, col.Label)
			}
			out[i] = string(items[i])
		default:
			return nil, fmt.Errorf("%w: gtcr column %q has unhandled type %q", domain.ErrDecode, col.Label, col.Type)
		}
	}
	return out, nil
}

// MarketAddress returns the first address in s, lowercased.
func MarketAddress(s string) (string, bool) {
	m := addressPattern.FindString(s)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}
