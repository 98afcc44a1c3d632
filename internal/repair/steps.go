package repair

import "strings"

// Each step is a pure string transform. A step that finds nothing to fix
// returns its input unchanged.

// StripWrappers removes markdown code fences and any prose around the
// outermost JSON value. A missing closing fence or closing bracket is
// tolerated so truncated replies survive this step.
func StripWrappers(s string) string {
	t := strings.TrimSpace(s)
	if i := strings.Index(t, "```"); i >= 0 {
		body := t[i+3:]
		// language tag such as ```json
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		t = strings.TrimSpace(body)
	}
	start := 0
	if t == "" || (t[0] != '{' && t[0] != '[') {
		start = strings.IndexAny(t, "{[")
		if start < 0 {
			return t
		}
	}
	closer := byte('}')
	if t[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(t, closer)
	if end < start {
		return t[start:]
	}
	return t[start : end+1]
}

// RemoveTrailingCommas drops a comma that is followed only by whitespace
// and a closing bracket or brace.
func RemoveTrailingCommas(s string) string {
	out := make([]byte, 0, len(s))
	var st strState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.step(c) {
			out = append(out, c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// CollapseControlChars replaces every run of raw control characters
// inside string literals, together with the blanks around it, by one
// space. Bytes outside strings are left alone.
func CollapseControlChars(s string) string {
	out := make([]byte, 0, len(s))
	var st strState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.in && c < 0x20 {
			if st.esc {
				// a backslash escaping a raw control char is meaningless
				out = out[:len(out)-1]
				st.esc = false
			}
			for len(out) > 0 && out[len(out)-1] == ' ' {
				out = out[:len(out)-1]
			}
			for i+1 < len(s) && (s[i+1] < 0x20 || s[i+1] == ' ') {
				i++
			}
			out = append(out, ' ')
			continue
		}
		st.step(c)
		out = append(out, c)
	}
	return string(out)
}

// QuoteKeys wraps bare identifier keys in double quotes: {id: 1} becomes
// {"id": 1}. Only identifiers directly after { or , and followed by a
// colon are touched.
func QuoteKeys(s string) string {
	out := make([]byte, 0, len(s)+8)
	var st strState
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.step(c) || (c != '{' && c != ',') {
			out = append(out, c)
			continue
		}
		out = append(out, c)
		j := i + 1
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j >= len(s) || !isIdentStart(s[j]) {
			continue
		}
		k := j
		for k < len(s) && isIdentPart(s[k]) {
			k++
		}
		m := k
		for m < len(s) && isSpace(s[m]) {
			m++
		}
		if m >= len(s) || s[m] != ':' {
			continue
		}
		out = append(out, s[i+1:j]...)
		out = append(out, '"')
		out = append(out, s[j:k]...)
		out = append(out, '"')
		i = k - 1
	}
	return string(out)
}

// strState tracks whether a byte-wise scan is inside a string literal.
type strState struct {
	in  bool
	esc bool
}

// step advances the state over c and reports whether c belongs to a
// string literal, opening and closing quotes included.
func (s *strState) step(c byte) bool {
	if s.in {
		switch {
		case s.esc:
			s.esc = false
		case c == '\\':
			s.esc = true
		case c == '"':
			s.in = false
		}
		return true
	}
	if c == '"' {
		s.in = true
		return true
	}
	return false
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}
