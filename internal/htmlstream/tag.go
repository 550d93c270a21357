package htmlstream

import (
	"strings"
)

// Attr is one attribute as written in the source. Val holds the raw bytes
// between the quotes, without entity decoding, so writing a tag back never
// changes escaping the author used.
type Attr struct {
	Name     string
	Val      string
	Quote    byte // '"', '\'' or 0 when unquoted
	HasValue bool
}

// Tag is a parsed start tag. Attribute order is source order.
type Tag struct {
	Name        string
	Attrs       []Attr
	SelfClosing bool
}

// ParseTag parses the raw bytes of a start or self-closing tag token.
// Returns ok=false when raw is not a well-formed start tag.
func ParseTag(raw []byte) (Tag, bool) {
	var t Tag
	if len(raw) < 3 || raw[0] != '<' || raw[len(raw)-1] != '>' {
		return t, false
	}
	i := 1
	if !isASCIILetter(raw[i]) {
		return t, false
	}
	start := i
	for i < len(raw) && isTagNameByte(raw[i]) {
		i++
	}
	t.Name = strings.ToLower(string(raw[start:i]))
	end := len(raw) - 1
	if raw[end-1] == '/' {
		t.SelfClosing = true
		end--
	}
	for i < end {
		for i < end && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= end {
			break
		}
		var a Attr
		start = i
		for i < end && !isSpace(raw[i]) && raw[i] != '=' && raw[i] != '/' {
			i++
		}
		a.Name = string(raw[start:i])
		if a.Name == "" {
			i++
			continue
		}
		for i < end && isSpace(raw[i]) {
			i++
		}
		if i < end && raw[i] == '=' {
			i++
			for i < end && isSpace(raw[i]) {
				i++
			}
			a.HasValue = true
			if i < end && (raw[i] == '"' || raw[i] == '\'') {
				a.Quote = raw[i]
				i++
				start = i
				for i < end && raw[i] != a.Quote {
					i++
				}
				a.Val = string(raw[start:i])
				if i < end {
					i++
				}
			} else {
				start = i
				for i < end && !isSpace(raw[i]) {
					i++
				}
				a.Val = string(raw[start:i])
			}
		}
		t.Attrs = append(t.Attrs, a)
	}
	return t, true
}

// Attr finds an attribute by name, ASCII case-insensitive.
func (t *Tag) Attr(name string) *Attr {
	for i := range t.Attrs {
		if strings.EqualFold(t.Attrs[i].Name, name) {
			return &t.Attrs[i]
		}
	}
	return nil
}

func (t *Tag) HasAttr(name string) bool {
	return t.Attr(name) != nil
}

// SetAttr replaces the value of an existing attribute or appends a new
// double-quoted one.
func (t *Tag) SetAttr(name, val string) {
	if a := t.Attr(name); a != nil {
		a.Val = val
		a.HasValue = true
		if a.Quote == 0 {
			a.Quote = '"'
		}
		return
	}
	t.Attrs = append(t.Attrs, Attr{Name: name, Val: val, Quote: '"', HasValue: true})
}

// RenameAttr renames an attribute in place, keeping its position, value
// and quoting.
func (t *Tag) RenameAttr(oldName, newName string) bool {
	a := t.Attr(oldName)
	if a == nil {
		return false
	}
	a.Name = newName
	return true
}

func (t *Tag) RemoveAttr(name string) {
	for i := range t.Attrs {
		if strings.EqualFold(t.Attrs[i].Name, name) {
			t.Attrs = append(t.Attrs[:i], t.Attrs[i+1:]...)
			return
		}
	}
}

// String serializes the tag. Self-closing tags end in "/>" with no space
// before the slash.
func (t *Tag) String() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(t.Name)
	for _, a := range t.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		if !a.HasValue {
			continue
		}
		b.WriteByte('=')
		if a.Quote != 0 {
			b.WriteByte(a.Quote)
			b.WriteString(a.Val)
			b.WriteByte(a.Quote)
		} else {
			b.WriteString(a.Val)
		}
	}
	if t.SelfClosing {
		b.WriteByte('/')
	}
	b.WriteByte('>')
	return b.String()
}
