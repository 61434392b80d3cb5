package salesforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// hasUnescapedQuote reports whether s would terminate a single-quoted literal
func hasUnescapedQuote(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			return true
		}
	}
	return false
}

func TestEscapeSOQL_InjectionPayloads(t *testing.T) {
	payloads := []string{
		`' OR Name != '`,
		`john' OR Id != null OR Name = '`,
		`\' OR 1=1 --`,
		`\\' LIMIT 1`,
		"line\nbreak' OR ''='",
		"nul\x00byte'",
		`"double" 'single'`,
		`trailing backslash\`,
		`%' AND Email LIKE '%`,
	}
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			escaped := EscapeSOQL(p)
			assert.False(t, hasUnescapedQuote(escaped), "escaped %q -> %q", p, escaped)
			assert.NotContains(t, escaped, "\n")
			assert.NotContains(t, escaped, "\x00")

			like := EscapeSOQLLike(p)
			assert.False(t, hasUnescapedQuote(like))
		})
	}
}

func TestEscapeSOQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"O'Brien", `O\'Brien`},
		{`back\slash`, `back\\slash`},
		{`say "hi"`, `say \"hi\"`},
		{"a\tb\r\nc", `a\tb\r\nc`},
		{"bell\x07", "bell"},
		{"Zoë Müller", "Zoë Müller"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeSOQL(tt.in), tt.in)
	}
}

func TestEscapeSOQLLike(t *testing.T) {
	assert.Equal(t, `100\%`, EscapeSOQLLike("100%"))
	assert.Equal(t, `first\_last`, EscapeSOQLLike("first_last"))
	assert.Equal(t, `O\'Brien\%`, EscapeSOQLLike("O'Brien%"))
}

func TestConditions(t *testing.T) {
	assert.Equal(t, `Name = 'O\'Brien'`, eq("Name", "O'Brien"))
	assert.Equal(t, `Name LIKE '%a\_b%'`, contains("Name", "a_b"))
	assert.Equal(t, `Id IN ('001A', '001\'B')`, in("Id", []string{"001A", "001'B"}))
	assert.Equal(t, "(A = 'x' OR B = 'y')", anyOf(eq("A", "x"), eq("B", "y")))
}

func TestSoqlQuery_String(t *testing.T) {
	q := selectFrom("Account", []string{"Id", "Name"}).
		Where(eq("Type", "Household")).
		Where(contains("Name", "john")).
		OrderBy("Name ASC").
		Limit(3).
		Offset(20)

	assert.Equal(t,
		"SELECT Id, Name FROM Account WHERE Type = 'Household' AND Name LIKE '%john%' ORDER BY Name ASC LIMIT 3 OFFSET 20",
		q.String(),
	)

	assert.Equal(t, "SELECT Id FROM Task", selectFrom("Task", []string{"Id"}).String())
}

func TestIsRecordID(t *testing.T) {
	assert.True(t, isRecordID("001000000000001"))
	assert.True(t, isRecordID("001000000000001AAA"))
	assert.False(t, isRecordID("001' OR Id != '"))
	assert.False(t, isRecordID("0010000000000"))
	assert.False(t, isRecordID(""))
}
