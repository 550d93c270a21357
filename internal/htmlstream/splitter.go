// Package htmlstream slices an HTML byte stream into windows that can be
// tokenized independently, and edits start tags while preserving the raw
// bytes of everything left untouched.
package htmlstream

import "bytes"

// Elements whose content the tokenizer reads as raw text. A window may
// not end inside one of these, or the remainder would be mis-tokenized
// as markup.
var rawTextTags = map[string]bool{
	"iframe":    true,
	"noembed":   true,
	"noframes":  true,
	"noscript":  true,
	"plaintext": true,
	"script":    true,
	"style":     true,
	"textarea":  true,
	"title":     true,
	"xmp":       true,
}

func IsRawTextTag(name string) bool {
	return rawTextTags[name]
}

type splitState int

const (
	stateText splitState = iota
	stateTag
	stateTagQuote
	stateBang
	stateComment
	stateRawText
	stateRawTextTag
)

// Splitter buffers streamed HTML and hands back the longest prefix that
// is safe to tokenize on its own: cuts land in text content, never inside
// a tag, a comment, or an open raw-text element.
type Splitter struct {
	buf  []byte
	pos  int
	safe int

	state    splitState
	name     []byte // lowercased tag name being read
	nameDone bool
	isEnd    bool
	afterEq  bool
	quote    byte
	rawName  string

	// script data escape tracking, see scanRawText
	escaped       bool
	doubleEscaped bool
}

func NewSplitter() *Splitter {
	return &Splitter{}
}

func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	s.scan()
	return len(p), nil
}

// Window consumes and returns the current safe prefix, or nil when no
// complete window is buffered yet.
func (s *Splitter) Window() []byte {
	if s.safe == 0 {
		return nil
	}
	w := make([]byte, s.safe)
	copy(w, s.buf[:s.safe])
	rest := len(s.buf) - s.safe
	copy(s.buf, s.buf[s.safe:])
	s.buf = s.buf[:rest]
	s.pos -= s.safe
	s.safe = 0
	return w
}

// Drain returns everything still buffered, regardless of state. Call at
// end of document; unterminated constructs go out as-is.
func (s *Splitter) Drain() []byte {
	w := make([]byte, len(s.buf))
	copy(w, s.buf)
	s.buf = s.buf[:0]
	s.pos = 0
	s.safe = 0
	s.state = stateText
	return w
}

// Buffered reports how many bytes are held back past the safe boundary.
func (s *Splitter) Buffered() int {
	return len(s.buf) - s.safe
}

func (s *Splitter) scan() {
	for s.pos < len(s.buf) {
		switch s.state {
		case stateText:
			if !s.scanText() {
				return
			}
		case stateTag:
			if !s.scanTag() {
				return
			}
		case stateTagQuote:
			i := bytes.IndexByte(s.buf[s.pos:], s.quote)
			if i < 0 {
				s.pos = len(s.buf)
				return
			}
			s.pos += i + 1
			s.state = stateTag
		case stateBang:
			i := bytes.IndexByte(s.buf[s.pos:], '>')
			if i < 0 {
				s.pos = len(s.buf)
				return
			}
			s.pos += i + 1
			s.enterText()
		case stateComment:
			i := bytes.Index(s.buf[s.pos:], []byte("-->"))
			if i < 0 {
				// Keep two bytes for a terminator split across writes.
				if s.pos < len(s.buf)-2 {
					s.pos = len(s.buf) - 2
				}
				return
			}
			s.pos += i + 3
			s.enterText()
		case stateRawText:
			if !s.scanRawText() {
				return
			}
		case stateRawTextTag:
			i := bytes.IndexByte(s.buf[s.pos:], '>')
			if i < 0 {
				s.pos = len(s.buf)
				return
			}
			s.pos += i + 1
			s.enterText()
		}
	}
	if s.state == stateText {
		s.safe = s.pos
	}
}

func (s *Splitter) enterText() {
	s.state = stateText
	s.safe = s.pos
}

// scanText returns false when it needs more input to decide.
func (s *Splitter) scanText() bool {
	i := bytes.IndexByte(s.buf[s.pos:], '<')
	if i < 0 {
		s.pos = len(s.buf)
		s.safe = s.pos
		return false
	}
	s.pos += i
	s.safe = s.pos
	if s.pos+1 >= len(s.buf) {
		return false
	}
	c := s.buf[s.pos+1]
	switch {
	case c == '!':
		// "<!--" opens a comment, any other "<!" runs to '>'.
		if s.pos+3 >= len(s.buf) {
			if !bytes.HasPrefix([]byte("<!--"), s.buf[s.pos:]) {
				s.state = stateBang
				s.pos += 2
				return true
			}
			return false
		}
		if bytes.Equal(s.buf[s.pos:s.pos+4], []byte("<!--")) {
			s.state = stateComment
			s.pos += 4
		} else {
			s.state = stateBang
			s.pos += 2
		}
	case c == '?':
		s.state = stateBang
		s.pos += 2
	case c == '/':
		if s.pos+2 >= len(s.buf) {
			return false
		}
		if isASCIILetter(s.buf[s.pos+2]) {
			s.startTag(true)
			s.pos += 2
		} else {
			// "</" before a non-letter is bogus comment, runs to '>'.
			s.state = stateBang
			s.pos += 2
		}
	case isASCIILetter(c):
		s.startTag(false)
		s.pos++
	default:
		// Literal '<' in text.
		s.pos++
	}
	return true
}

func (s *Splitter) startTag(isEnd bool) {
	s.state = stateTag
	s.name = s.name[:0]
	s.nameDone = false
	s.isEnd = isEnd
	s.afterEq = false
}

func (s *Splitter) scanTag() bool {
	for s.pos < len(s.buf) {
		c := s.buf[s.pos]
		if !s.nameDone {
			if isTagNameByte(c) {
				s.name = append(s.name, lower(c))
				s.pos++
				continue
			}
			s.nameDone = true
		}
		switch {
		case c == '>':
			s.pos++
			s.closeTag()
			return true
		case c == '=':
			s.afterEq = true
			s.pos++
		case c == '"' || c == '\'':
			if s.afterEq {
				s.quote = c
				s.state = stateTagQuote
				s.afterEq = false
				s.pos++
				return true
			}
			s.pos++
		case isSpace(c) || c == '/':
			s.pos++
		default:
			s.afterEq = false
			s.pos++
		}
	}
	return false
}

func (s *Splitter) closeTag() {
	if !s.isEnd && rawTextTags[string(s.name)] {
		// The tokenizer reads raw content even after "<script/>".
		s.state = stateRawText
		s.rawName = string(s.name)
		s.escaped = false
		s.doubleEscaped = false
		return
	}
	s.enterText()
}

// scanRawText looks for the matching end tag. Script content follows the
// escape rules the tokenizer applies: inside "<!--" a nested "<script"
// double-escapes, and a "</script" there only undoes the double escape.
func (s *Splitter) scanRawText() bool {
	closing := "</" + s.rawName
	for s.pos < len(s.buf) {
		if s.escaped {
			j := bytes.Index(s.buf[s.pos:], []byte("-->"))
			k := bytes.IndexByte(s.buf[s.pos:], '<')
			if j >= 0 && (k < 0 || j < k) {
				s.pos += j + 3
				s.escaped = false
				s.doubleEscaped = false
				continue
			}
			if k < 0 {
				if s.pos < len(s.buf)-2 {
					s.pos = len(s.buf) - 2
				}
				return false
			}
		}
		i := bytes.IndexByte(s.buf[s.pos:], '<')
		if i < 0 {
			s.pos = len(s.buf)
			return false
		}
		s.pos += i
		need := len(closing) + 1
		if s.rawName == "script" && !s.escaped {
			need = 4 // room for "<!--"
		}
		if s.pos+need > len(s.buf) {
			return false
		}
		rest := s.buf[s.pos:]
		if s.rawName == "script" {
			if !s.escaped && bytes.HasPrefix(rest, []byte("<!--")) {
				s.escaped = true
				s.pos += 4
				continue
			}
			if s.escaped && !s.doubleEscaped && hasCaseInsensitivePrefix(rest, "<script") {
				s.doubleEscaped = true
				s.pos += len("<script")
				continue
			}
		}
		if hasCaseInsensitivePrefix(rest, closing) && isTagNameEnd(rest[len(closing)]) {
			if s.doubleEscaped {
				s.doubleEscaped = false
				s.pos += len(closing)
				continue
			}
			s.pos += len(closing)
			s.state = stateRawTextTag
			return true
		}
		s.pos++
	}
	return false
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isTagNameByte(c byte) bool {
	return isASCIILetter(c) || ('0' <= c && c <= '9')
}

func isTagNameEnd(c byte) bool {
	return c == '>' || c == '/' || isSpace(c)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

func hasCaseInsensitivePrefix(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if lower(b[i]) != lower(prefix[i]) {
			return false
		}
	}
	return true
}
