package snow

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a comparison operator in the encoded query syntax.
type Op string

const (
	OpEquals     Op = "="
	OpNotEquals  Op = "!="
	OpGreater    Op = ">"
	OpGreaterEq  Op = ">="
	OpLess       Op = "<"
	OpLessEq     Op = "<="
	OpLike       Op = "LIKE"
	OpStartsWith Op = "STARTSWITH"
	OpEndsWith   Op = "ENDSWITH"
	OpIn         Op = "IN"
	OpIsEmpty    Op = "ISEMPTY"
	OpIsNotEmpty Op = "ISNOTEMPTY"
)

var allowedOps = map[Op]bool{
	OpEquals:     true,
	OpNotEquals:  true,
	OpGreater:    true,
	OpGreaterEq:  true,
	OpLess:       true,
	OpLessEq:     true,
	OpLike:       true,
	OpStartsWith: true,
	OpEndsWith:   true,
	OpIn:         true,
	OpIsEmpty:    true,
	OpIsNotEmpty: true,
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)

// Filter is one structured query condition. Filters are combined with
// logical AND when rendered.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Query accumulates filters and ordering for one table request.
type Query struct {
	filters []Filter
	orderBy string // field name, empty = no ordering
	desc    bool
}

// NewQuery creates an empty query
func NewQuery() *Query {
	return &Query{}
}

// Where appends a filter condition
func (q *Query) Where(field string, op Op, value string) *Query {
	q.filters = append(q.filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sorts ascending by field
func (q *Query) OrderBy(field string) *Query {
	q.orderBy = field
	q.desc = false
	return q
}

// OrderByDesc sorts descending by field
func (q *Query) OrderByDesc(field string) *Query {
	q.orderBy = field
	q.desc = true
	return q
}

// Encode renders the query into the encoded query syntax (conditions joined
// by ^, ORDERBY/ORDERBYDESC suffix). Invalid field names, unknown operators,
// and values containing the ^ separator or control characters are rejected
// outright; there is no best-effort sanitizing.
func (q *Query) Encode() (string, error) {
	var parts []string

	for _, f := range q.filters {
		if err := validateField(f.Field); err != nil {
			return "", err
		}
		if !allowedOps[f.Op] {
			return "", InvalidParameter("unsupported query operator %q", string(f.Op))
		}
		if err := validateValue(f.Field, f.Value); err != nil {
			return "", err
		}
		switch f.Op {
		case OpIsEmpty, OpIsNotEmpty:
			parts = append(parts, f.Field+string(f.Op))
		default:
			parts = append(parts, f.Field+string(f.Op)+f.Value)
		}
	}

	if q.orderBy != "" {
		if err := validateField(q.orderBy); err != nil {
			return "", err
		}
		if q.desc {
			parts = append(parts, "ORDERBYDESC"+q.orderBy)
		} else {
			parts = append(parts, "ORDERBY"+q.orderBy)
		}
	}

	return strings.Join(parts, "^"), nil
}

// MustEncode is Encode for queries built entirely from trusted literals.
// Panics on validation failure, which would be a programming error.
func (q *Query) MustEncode() string {
	s, err := q.Encode()
	if err != nil {
		panic(fmt.Sprintf("invalid query: %v", err))
	}
	return s
}

func validateField(field string) error {
	if !fieldNameRe.MatchString(field) {
		return InvalidParameter("invalid field name %q", field)
	}
	return nil
}

func validateValue(field, value string) error {
	for _, r := range value {
		if r == '^' || r < 0x20 || r == 0x7f {
			return InvalidParameter("value for field %q contains forbidden characters", field)
		}
	}
	return nil
}

var sysIDRe = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// ValidateSysID checks the canonical 32-hex record identifier format
func ValidateSysID(sysID string) error {
	if !sysIDRe.MatchString(sysID) {
		return InvalidParameter("invalid sys_id %q: must be 32 hex characters", sysID)
	}
	return nil
}
