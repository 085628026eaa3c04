// Package asn builds the ASN -> CIDR index used to expand IP-ASN rules.
package asn

import (
	"fmt"
	"strconv"
	"strings"
)

// Family selects one of the two address tables.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// FormatError reports a table that does not have the expected CSV shape.
type FormatError struct {
	File    string
	Line    int
	Message string
	Cause   error
}

func (e *FormatError) Error() string {
	if e == nil {
		return "<nil>"
	}
	where := e.File
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", where, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", where, e.Message, e.Cause)
}

func (e *FormatError) Unwrap() error { return e.Cause }

// Index maps autonomous system numbers to the CIDR blocks announced by them.
// It is filled once by one of the loaders and only read afterwards.
type Index struct {
	v4 map[uint32][]string
	v6 map[uint32][]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		v4: make(map[uint32][]string),
		v6: make(map[uint32][]string),
	}
}

// Add appends a CIDR to the table of the given family.
func (x *Index) Add(fam Family, number uint32, cidr string) {
	switch fam {
	case IPv6:
		x.v6[number] = append(x.v6[number], cidr)
	default:
		x.v4[number] = append(x.v4[number], cidr)
	}
}

// Lookup returns the CIDRs of one family for the ASN. Unknown numbers yield nil.
func (x *Index) Lookup(number uint32, fam Family) []string {
	if x == nil {
		return nil
	}
	if fam == IPv6 {
		return x.v6[number]
	}
	return x.v4[number]
}

// Expand returns every IPv4 CIDR of the ASN followed by every IPv6 CIDR.
func (x *Index) Expand(number uint32) []string {
	v4 := x.Lookup(number, IPv4)
	v6 := x.Lookup(number, IPv6)
	if len(v4)+len(v6) == 0 {
		return nil
	}
	out := make([]string, 0, len(v4)+len(v6))
	out = append(out, v4...)
	return append(out, v6...)
}

// Len returns the number of distinct ASNs in one table.
func (x *Index) Len(fam Family) int {
	if x == nil {
		return 0
	}
	if fam == IPv6 {
		return len(x.v6)
	}
	return len(x.v4)
}

// Blocks returns the number of CIDR blocks in one table.
func (x *Index) Blocks(fam Family) int {
	if x == nil {
		return 0
	}
	table := x.v4
	if fam == IPv6 {
		table = x.v6
	}
	n := 0
	for _, cidrs := range table {
		n += len(cidrs)
	}
	return n
}

// ParseNumber parses an ASN as written in rule files and CSV tables.
// An "AS" prefix is accepted.
func ParseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && strings.EqualFold(s[:2], "AS") {
		s = s[2:]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
