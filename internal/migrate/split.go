package migrate

import "strings"

// splitStatements cuts a SQL script on top-level semicolons. Quoted strings,
// quoted identifiers and $$ bodies are kept intact, and -- comments are
// dropped. Returned statements are trimmed and carry no trailing semicolon.
func splitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && strings.HasPrefix(script[i:], "--"):
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				i = len(script)
				continue
			}
			i += end
			cur.WriteByte('\n')
		case c == '\'' || c == '"':
			end := closing(script, i+1, c)
			cur.WriteString(script[i:end])
			i = end - 1
		case c == '$' && strings.HasPrefix(script[i:], "$$"):
			end := strings.Index(script[i+2:], "$$")
			if end < 0 {
				cur.WriteString(script[i:])
				i = len(script)
				continue
			}
			stop := i + 2 + end + 2
			cur.WriteString(script[i:stop])
			i = stop - 1
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// closing returns the index just past the quote that ends a literal opened
// before from. A doubled quote is an escape.
func closing(s string, from int, quote byte) int {
	for j := from; j < len(s); j++ {
		if s[j] != quote {
			continue
		}
		if j+1 < len(s) && s[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}
