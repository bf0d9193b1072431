// Package jsonrepair extracts a single JSON object from free-form model output
// and force-closes it when the output was cut off mid-structure.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when the input holds no opening brace at all.
var ErrNoJSON = errors.New("no JSON object found")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)\\s*```")

// StripFences removes a markdown code fence around the payload. An opening
// fence whose closing fence was lost to truncation is removed as well.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "```") {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			return strings.TrimSpace(text[idx+1:])
		}
		return ""
	}
	return text
}

// Repair returns the first JSON object found in text. Scanning starts at the
// first '{' and stops as soon as that object closes, so prose before it and
// commentary after it are dropped. When the input ends with containers still
// open the output is closed off; braces inside string literals never count.
//
// The result is syntactically balanced but may still fail to parse in rare
// cases; callers decode it and treat a decode error as invalid output.
func Repair(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	s := &scanner{}
	for i := start; i < len(text); i++ {
		if s.feed(text[i]) {
			return s.out.String(), nil
		}
	}
	return s.close(), nil
}

type scanner struct {
	out      strings.Builder
	stack    []byte // open containers: '{' or '['
	inString bool
	escaped  bool

	// last point where everything written so far was a complete prefix:
	// right after an opening bracket, a closing bracket, or before a comma.
	safeLen   int
	safeStack []byte
}

// feed consumes one byte and reports whether the root object just closed.
func (s *scanner) feed(c byte) bool {
	if s.inString {
		s.out.WriteByte(c)
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return false
	}

	switch c {
	case '"':
		s.inString = true
	case '{', '[':
		s.out.WriteByte(c)
		s.stack = append(s.stack, c)
		s.markSafe()
		return false
	case '}', ']':
		s.out.WriteByte(c)
		if len(s.stack) > 0 {
			s.stack = s.stack[:len(s.stack)-1]
		}
		if len(s.stack) == 0 {
			return true
		}
		s.markSafe()
		return false
	case ',':
		s.markSafe()
	}
	s.out.WriteByte(c)
	return false
}

func (s *scanner) markSafe() {
	s.safeLen = s.out.Len()
	s.safeStack = append(s.safeStack[:0], s.stack...)
}

// close finishes a truncated scan. Candidates are tried from the least to the
// most destructive and the first one that is valid JSON wins.
func (s *scanner) close() string {
	body := s.out.String()
	plain := body + closers(s.stack)

	var candidates []string
	if s.inString {
		tail := body
		if s.escaped {
			tail = tail[:len(tail)-1]
		}
		candidates = append(candidates, tail+`"`+closers(s.stack))
	} else {
		candidates = append(candidates, plain)
	}
	candidates = append(candidates, body[:s.safeLen]+closers(s.safeStack))

	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c
		}
	}
	return plain
}

func closers(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '[' {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	}
	return b.String()
}
