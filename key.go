package shopcache

import (
	"strconv"
	"strings"
)

// DefaultLimit is the storefront page size.
const DefaultLimit = 9

// Params select one listing page. The zero value is the first page of the
// unfiltered catalog.
type Params struct {
	Limit  int    `json:"limit" cbor:"limit" msgpack:"limit"`
	Offset int    `json:"offset" cbor:"offset" msgpack:"offset"`
	Gender string `json:"gender" cbor:"gender" msgpack:"gender"`
}

// Normalize fills defaults: limit 9 when non-positive, offset 0 when negative,
// gender trimmed and lower-cased.
func (p Params) Normalize() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	return p
}

// BuildKey derives the cache key of a listing request as
// "<limit>-<offset>-<gender>" over the normalized params.
// Limit and offset are non-negative decimals, so the gender suffix can never
// make two different queries collide.
func BuildKey(p Params) string {
	p = p.Normalize()
	var b strings.Builder
	b.Grow(8 + len(p.Gender))
	b.WriteString(strconv.Itoa(p.Limit))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(p.Offset))
	b.WriteByte('-')
	b.WriteString(p.Gender)
	return b.String()
}

// PageParams maps a 1-based storefront page number to listing params.
func PageParams(gender string, page int) Params {
	if page < 1 {
		page = 1
	}
	return Params{Limit: DefaultLimit, Offset: (page - 1) * DefaultLimit, Gender: gender}
}
