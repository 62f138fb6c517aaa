package netbeans

import (
	"strings"
	"unicode"
)

// Quote wraps text in double quotes, escaping the characters that netbeans
// strings cannot carry verbatim.
func Quote(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 2)
	sb.WriteByte('"')
	for _, r := range text {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Unquote removes the escapes from the content of a netbeans string (the
// text between the enclosing quotes). Backslash sequences other than \", \n,
// \t, \r and \\ are left as they are.
func Unquote(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '"':
			sb.WriteByte('"')
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		default:
			sb.WriteByte(c)
			continue
		}
		i++
	}
	return sb.String()
}

// SplitQuoted returns the whitespace separated tokens of text. A double
// quoted substring is a single token: its quotes are stripped and its escapes
// removed. For example
//
//	"a c" b v "this \"is\" foobar argument" Y
//
// is split into
//
//	[a c] [b] [v] [this "is" foobar argument] [Y]
func SplitQuoted(text string) []string {
	res := []string{}
	i := 0
	for {
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		if i == len(text) {
			return res
		}
		if text[i] == '"' {
			end := closingQuote(text, i+1)
			if end < 0 {
				res = append(res, Unquote(text[i+1:]))
				return res
			}
			res = append(res, Unquote(text[i+1:end]))
			i = end + 1
			continue
		}
		start := i
		for i < len(text) && !isSpace(text[i]) {
			i++
		}
		res = append(res, text[start:i])
	}
}

// closingQuote returns the index of the first unescaped double quote in s at
// or after from, or -1.
func closingQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c < 0x80 && unicode.IsSpace(rune(c))
}
