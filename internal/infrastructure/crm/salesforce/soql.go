package salesforce

import (
	"regexp"
	"strconv"
	"strings"
)

// EscapeSOQL escapes s for use inside a single-quoted SOQL string literal.
// It is the only place user text enters a query: backslashes and quotes are
// escaped, line breaks become escape sequences and other control characters
// are dropped.
func EscapeSOQL(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// EscapeSOQLLike escapes s for a LIKE pattern, where % and _ are wildcards
func EscapeSOQLLike(s string) string {
	s = EscapeSOQL(s)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// quote renders s as a SOQL string literal
func quote(s string) string {
	return "'" + EscapeSOQL(s) + "'"
}

// idPattern matches 15 and 18 character record ids
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`)

// isRecordID reports whether id has the shape of a Salesforce record id
func isRecordID(id string) bool {
	return idPattern.MatchString(id)
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

// eq renders field = 'value'
func eq(field, value string) string {
	return field + " = " + quote(value)
}

// contains renders field LIKE '%value%'
func contains(field, value string) string {
	return field + " LIKE '%" + EscapeSOQLLike(value) + "%'"
}

// in renders field IN ('a', 'b')
func in(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return field + " IN (" + strings.Join(quoted, ", ") + ")"
}

// anyOf joins conditions with OR inside parentheses
func anyOf(conds ...string) string {
	return "(" + strings.Join(conds, " OR ") + ")"
}

// ---------------------------------------------------------------------------
// Query builder
// ---------------------------------------------------------------------------

// soqlQuery builds a SELECT statement. Conditions must come from the helpers
// above so that every literal passes through EscapeSOQL.
type soqlQuery struct {
	fields  []string
	object  string
	where   []string
	orderBy string
	limit   int
	offset  int
}

func selectFrom(object string, fields []string) *soqlQuery {
	return &soqlQuery{object: object, fields: fields}
}

// Where adds a condition; conditions are ANDed
func (q *soqlQuery) Where(cond string) *soqlQuery {
	q.where = append(q.where, cond)
	return q
}

// OrderBy sets the ORDER BY clause
func (q *soqlQuery) OrderBy(clause string) *soqlQuery {
	q.orderBy = clause
	return q
}

// Limit sets LIMIT; zero means none
func (q *soqlQuery) Limit(n int) *soqlQuery {
	q.limit = n
	return q
}

// Offset sets OFFSET; zero means none
func (q *soqlQuery) Offset(n int) *soqlQuery {
	q.offset = n
	return q
}

// String renders the statement
func (q *soqlQuery) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.object)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	if q.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(q.offset))
	}
	return b.String()
}
