package repair

import "strings"

// RecoverTruncated salvages a reply that was cut off. It keeps s up to
// offset, rewinds to the last complete element of the record array and
// appends the closers the retained prefix needs. The record array is
// the reply itself or an array field of the top-level object. Partial
// records are dropped whole, never completed; the top-level object only
// loses the fields that followed the last complete record.
//
// It returns false when there is nothing safe to keep: no record array,
// no element completed before the cut, or the prefix closes a bracket it
// never opened.
func RecoverTruncated(s string, offset int) (string, bool) {
	if offset < 0 || offset > len(s) {
		offset = len(s)
	}
	prefix := s[:offset]

	var (
		st     strState
		stack  []byte
		outer  = -1 // stack index of the open record array
		markAt = -1
		markSt []byte
	)
	mark := func(at int) {
		markAt = at
		markSt = append(markSt[:0], stack...)
	}
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if st.step(c) {
			if !st.in && len(stack) == outer+1 && outer >= 0 {
				// string element of the outer array just ended
				mark(i + 1)
			}
			continue
		}
		switch c {
		case '{', '[':
			if c == '[' && outer < 0 && len(stack) <= 1 {
				outer = len(stack)
			}
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != opener(c) {
				return "", false
			}
			stack = stack[:len(stack)-1]
			switch {
			case len(stack) == 0:
				// the value is complete; anything after it is noise
				return prefix[:i+1], true
			case len(stack) == outer:
				// the outer array itself closed
				outer = -1
				mark(i + 1)
			case len(stack) == outer+1:
				// a container element of the outer array closed
				mark(i + 1)
			}
		case ',':
			if outer >= 0 && len(stack) == outer+1 {
				// whatever preceded the comma is a complete element
				mark(i)
			}
		}
	}
	if markAt < 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(prefix[:markAt], " \t\r\n"))
	for i := len(markSt) - 1; i >= 0; i-- {
		b.WriteByte(closer(markSt[i]))
	}
	return b.String(), true
}

func opener(c byte) byte {
	if c == '}' {
		return '{'
	}
	return '['
}

func closer(c byte) byte {
	if c == '{' {
		return '}'
	}
	return ']'
}
