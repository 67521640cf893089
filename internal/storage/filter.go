package storage

import (
	"fmt"
	"strings"

	"github.com/smartdevs17/evm-event-indexer/internal/models"
)

// Dialect selects the placeholder style a backend expects.
type Dialect int

const (
	DialectSQLite   Dialect = iota // ?
	DialectPostgres                // $1, $2, ...
)

// FilterBuilder assembles AND-combined predicates over the events table,
// independent of the storage engine. Each predicate carries exactly one
// placeholder, written as ? and rewritten per dialect at render time.
type FilterBuilder struct {
	conds []string
	args  []interface{}
}

// NewFilterBuilder creates an empty builder.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// And appends one predicate. expr must contain a single ? placeholder.
func (b *FilterBuilder) And(expr string, arg interface{}) *FilterBuilder {
	b.conds = append(b.conds, expr)
	b.args = append(b.args, arg)
	return b
}

// FromEventFilter maps every set field of an EventFilter onto a predicate.
func (b *FilterBuilder) FromEventFilter(f models.EventFilter) *FilterBuilder {
	if f.ContractAddress != nil {
		b.And("contract_address = ?", strings.ToLower(*f.ContractAddress))
	}
	if f.EventName != nil {
		b.And("event_name = ?", *f.EventName)
	}
	if f.Network != nil {
		b.And("network = ?", *f.Network)
	}
	if f.FromBlock != nil {
		b.And("block_number >= ?", *f.FromBlock)
	}
	if f.ToBlock != nil {
		b.And("block_number <= ?", *f.ToBlock)
	}
	if f.FromDate != nil {
		b.And("created_at >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		b.And("created_at <= ?", *f.ToDate)
	}
	return b
}

// Empty reports whether no predicates were added.
func (b *FilterBuilder) Empty() bool {
	return len(b.conds) == 0
}

// Clause renders the WHERE clause (with a leading space) and its arguments
// for the given dialect. An empty builder renders to an empty clause.
func (b *FilterBuilder) Clause(d Dialect) (string, []interface{}) {
	if len(b.conds) == 0 {
		return "", nil
	}

	rendered := make([]string, len(b.conds))
	n := 0
	for i, cond := range b.conds {
		switch d {
		case DialectPostgres:
			n++
			rendered[i] = strings.Replace(cond, "?", fmt.Sprintf("$%d", n), 1)
		default:
			rendered[i] = cond
		}
	}

	return " WHERE " + strings.Join(rendered, " AND "), b.args
}

// NextPlaceholder returns the placeholder for one additional argument
// appended after the clause, e.g. for LIMIT/OFFSET.
func (b *FilterBuilder) NextPlaceholder(d Dialect, offset int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", len(b.conds)+offset+1)
	}
	return "?"
}
