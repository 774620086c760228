package captable

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/uivlis/sto/pkg/app/errors"
	"github.com/uivlis/sto/pkg/db"
	"github.com/uivlis/sto/pkg/identity"
)

// SortBy selects the primary sort key of the cap table.
type SortBy string

const (
	SortByBalance SortBy = "balance"
	SortByName    SortBy = "name"
	SortByUpdated SortBy = "updated"
	SortByAddress SortBy = "address"
)

// Direction is the sort direction of the primary key. Ties are always broken
// by ascending address so the output order is a deterministic total order.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Options shapes the rendered table. The zero value sorts by balance
// descending and drops empty holders.
type Options struct {
	SortBy       SortBy
	Direction    Direction
	IncludeEmpty bool
	MaxEntries   int // 0 means no limit

	// TokenDecimals scales raw base units into whole tokens; Accuracy is
	// how many fractional digits the rendered balance keeps.
	TokenDecimals int32
	Accuracy      int32
}

// Entry is one cap table row.
type Entry struct {
	Address          string
	Name             string
	RawBalance       decimal.Decimal
	Balance          decimal.Decimal // scaled by token decimals
	BalanceDisplay   string
	LastUpdatedBlock int64
	LastUpdatedAt    time.Time
}

// Build renders the holder ledger into a sorted cap table. It is a pure
// function: identical inputs always produce identical output, including
// ordering.
func Build(holders []*db.TokenHolderAccount, provider identity.Provider, opts Options) ([]Entry, error) {
	if opts.SortBy == "" {
		opts.SortBy = SortByBalance
	}
	if opts.Direction == "" {
		opts.Direction = Descending
	}
	if provider == nil {
		provider = identity.NullProvider{}
	}
	switch opts.SortBy {
	case SortByBalance, SortByName, SortByUpdated, SortByAddress:
	default:
		return nil, apperrors.InvariantViolationError(nil, fmt.Sprintf("unknown sort key %q", opts.SortBy))
	}

	entries := make([]Entry, 0, len(holders))
	for _, holder := range holders {
		raw, err := decimal.NewFromString(holder.RawBalance)
		if err != nil {
			return nil, apperrors.InvariantViolationError(err,
				fmt.Sprintf("stored balance %q for %s is not numeric", holder.RawBalance, holder.Address))
		}
		if !opts.IncludeEmpty && raw.IsZero() {
			continue
		}

		name, _ := provider.Lookup(holder.Address)
		balance := raw.Shift(-opts.TokenDecimals)
		entries = append(entries, Entry{
			Address:          holder.Address,
			Name:             name,
			RawBalance:       raw,
			Balance:          balance,
			BalanceDisplay:   balance.StringFixed(opts.Accuracy),
			LastUpdatedBlock: holder.LastUpdatedBlock,
			LastUpdatedAt:    holder.LastUpdatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return less(&entries[i], &entries[j], opts)
	})

	if opts.MaxEntries > 0 && len(entries) > opts.MaxEntries {
		entries = entries[:opts.MaxEntries]
	}
	return entries, nil
}

func less(a, b *Entry, opts Options) bool {
	var cmp int
	switch opts.SortBy {
	case SortByBalance:
		cmp = a.RawBalance.Cmp(b.RawBalance)
	case SortByName:
		switch {
		case a.Name < b.Name:
			cmp = -1
		case a.Name > b.Name:
			cmp = 1
		}
	case SortByUpdated:
		switch {
		case a.LastUpdatedAt.Before(b.LastUpdatedAt):
			cmp = -1
		case a.LastUpdatedAt.After(b.LastUpdatedAt):
			cmp = 1
		}
	case SortByAddress:
		switch {
		case a.Address < b.Address:
			cmp = -1
		case a.Address > b.Address:
			cmp = 1
		}
	}

	if cmp == 0 {
		// address tiebreak, always ascending
		return a.Address < b.Address
	}
	if opts.Direction == Descending {
		return cmp > 0
	}
	return cmp < 0
}
