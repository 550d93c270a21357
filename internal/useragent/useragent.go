// Package useragent classifies raw User-Agent strings against small wildcard
// allow-lists. The delay-images rewriter only activates for agents known to
// handle inline data-URI previews and the high-res swap script.
package useragent

import (
	"log/slog"
	"strings"

	"github.com/dlclark/regexp2"
)

type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
)

// Agents that support inline preview images. Wildcard syntax: '*' matches
// any run of characters, everything else is literal.
var supportedSignatures = []string{
	"*Android*",
	"*iPhone*",
	"*iPad*",
	"*iPod*",
	"*Chrome/*",
	"*Safari*",
	"*Firefox/*",
	"*MSIE *",
	"*Opera*",
}

var mobileSignatures = []string{
	"*Android*Mobile*",
	"*iPhone*",
	"*iPod*",
	"*Opera Mobi*",
	"*Opera Mini*",
	"*Windows Phone*",
	"*BlackBerry*",
}

type Classifier struct {
	supported []*regexp2.Regexp
	mobile    []*regexp2.Regexp
}

func New() *Classifier {
	return &Classifier{
		supported: compileSignatures(supportedSignatures),
		mobile:    compileSignatures(mobileSignatures),
	}
}

// SupportsDelayImages reports whether the agent is in the inline-preview
// allow-list. Unknown agents are not supported.
func (c *Classifier) SupportsDelayImages(ua string) bool {
	return matchAny(c.supported, ua)
}

// IsMobile reports whether the agent matches a known mobile signature.
func (c *Classifier) IsMobile(ua string) bool {
	return matchAny(c.mobile, ua)
}

func (c *Classifier) Class(ua string) DeviceClass {
	if c.IsMobile(ua) {
		return DeviceMobile
	}
	return DeviceDesktop
}

func matchAny(patterns []*regexp2.Regexp, ua string) bool {
	for _, p := range patterns {
		ok, err := p.MatchString(ua)
		if err != nil {
			slog.Error("useragent match", "pattern", p.String(), "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func compileSignatures(signatures []string) []*regexp2.Regexp {
	compiled := make([]*regexp2.Regexp, 0, len(signatures))
	for _, sig := range signatures {
		re, err := regexp2.Compile(wildcardToRegex(sig), regexp2.None)
		if err != nil {
			slog.Error("regexp2.Compile", "signature", sig, "error", err)
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// wildcardToRegex converts a '*'-wildcard signature into an anchored regex.
func wildcardToRegex(sig string) string {
	parts := strings.Split(sig, "*")
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = regexp2.Escape(part)
	}
	return "^" + strings.Join(escaped, ".*") + "$"
}
