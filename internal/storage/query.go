// Package storage persists tasks and publishes change events. Every backend
// answers the same structured Query so filtering semantics never depend on
// how a date happens to be encoded.
package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"taskcal/internal/domain"
)

var errMissingOwner = errors.New("owner id is required")

// Query scopes a listing to one owner and, optionally, an inclusive day
// range. From and To are zero for FilterAll.
type Query struct {
	OwnerID string
	Mode    domain.FilterMode
	From    domain.Day
	To      domain.Day
}

// BuildQuery turns a filter request into a store query. It fails closed: an
// empty owner is an authorization error, never an unscoped listing.
func BuildQuery(ownerID string, mode domain.FilterMode, ref domain.Day) (Query, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Query{}, domain.Unauthorized(errMissingOwner)
	}
	q := Query{OwnerID: ownerID, Mode: mode}
	switch mode {
	case domain.FilterAll:
	case domain.FilterToday:
		if ref.IsZero() {
			return Query{}, domain.Validation("date", "date is required for filter today")
		}
		q.From, q.To = ref, ref
	case domain.FilterMonth:
		if ref.IsZero() {
			return Query{}, domain.Validation("date", "date is required for filter month")
		}
		m := ref.MonthOf()
		q.From, q.To = m.First(), m.Last()
	default:
		return Query{}, domain.Validation("filter", "unknown filter mode "+strconv.Quote(string(mode)))
	}
	return q, nil
}

// AllFor is the unfiltered query for an owner.
func AllFor(ownerID string) (Query, error) {
	return BuildQuery(ownerID, domain.FilterAll, domain.Day{})
}

// Ranged reports whether the query restricts dates.
func (q Query) Ranged() bool { return !q.From.IsZero() }

// Match applies the query to a task in memory.
func (q Query) Match(t domain.Task) bool {
	if t.OwnerID != q.OwnerID {
		return false
	}
	if !q.Ranged() {
		return true
	}
	return !t.Date.Before(q.From) && !t.Date.After(q.To)
}

// CacheKey identifies the query's result set within an owner.
func (q Query) CacheKey() string {
	if !q.Ranged() {
		return string(domain.FilterAll)
	}
	return q.From.Key() + ".." + q.To.Key()
}

// ordinal encodes a day as yyyymmdd so ranges compare as integers.
func ordinal(d domain.Day) int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// odataFilter renders the query for Azure Tables.
func (q Query) odataFilter() string {
	f := "PartitionKey eq '" + strings.ReplaceAll(q.OwnerID, "'", "''") + "'"
	if q.Ranged() {
		f += fmt.Sprintf(" and DateOrdinal ge %d and DateOrdinal le %d", ordinal(q.From), ordinal(q.To))
	}
	return f
}
