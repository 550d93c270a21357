// Package rule decides per request whether the HTML rewriter runs.
// Rules are evaluated in order; the first match wins. Without a match the
// request falls through to the server's global mode.
package rule

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/go-playground/validator/v10"

	"github.com/pageboost/pageboost/internal/config"
)

type RuleType string

const (
	RuleTypeDomain        RuleType = "DOMAIN"
	RuleTypeDomainSuffix  RuleType = "DOMAIN-SUFFIX"
	RuleTypeDomainKeyword RuleType = "DOMAIN-KEYWORD"
	RuleTypeURLRegex      RuleType = "URL-REGEX"
	RuleTypeIPCIDR        RuleType = "IP-CIDR"
	RuleTypeSrcIP         RuleType = "SRC-IP"
	RuleTypeDestPort      RuleType = "DEST-PORT"
	RuleTypeFinal         RuleType = "FINAL"
)

type Action string

const (
	ActionRewrite Action = "REWRITE"
	ActionBypass  Action = "BYPASS"
)

// Metadata carries the request facts rules match against.
type Metadata struct {
	Host     string
	URL      string
	SrcIP    string
	DstIP    string
	DestPort int
}

type Rule struct {
	Enabled    bool     `json:"enabled"`
	Type       RuleType `json:"type" validate:"required,oneof=DOMAIN DOMAIN-SUFFIX DOMAIN-KEYWORD URL-REGEX IP-CIDR SRC-IP DEST-PORT FINAL"`
	MatchValue string   `json:"match_value,omitempty" validate:"required_unless=Type FINAL"`
	Action     Action   `json:"action" validate:"required,oneof=REWRITE BYPASS"`

	regex *regexp2.Regexp
	ipNet *net.IPNet
	port  int
}

func (r *Rule) Match(m *Metadata) bool {
	switch r.Type {
	case RuleTypeDomain:
		return strings.EqualFold(m.Host, r.MatchValue)
	case RuleTypeDomainSuffix:
		host := strings.ToLower(m.Host)
		suffix := strings.ToLower(r.MatchValue)
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	case RuleTypeDomainKeyword:
		return strings.Contains(strings.ToLower(m.Host), strings.ToLower(r.MatchValue))
	case RuleTypeURLRegex:
		if r.regex == nil {
			return false
		}
		ok, err := r.regex.MatchString(m.URL)
		if err != nil {
			slog.Warn("regex.MatchString", slog.String("url", m.URL), slog.Any("error", err))
			return false
		}
		return ok
	case RuleTypeIPCIDR:
		return r.matchCIDR(m.DstIP)
	case RuleTypeSrcIP:
		return r.matchCIDR(m.SrcIP)
	case RuleTypeDestPort:
		return m.DestPort == r.port
	case RuleTypeFinal:
		return true
	}
	return false
}

func (r *Rule) matchCIDR(addr string) bool {
	if r.ipNet == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	return r.ipNet.Contains(ip)
}

func (r *Rule) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(r.Type)),
		slog.String("match", r.MatchValue),
		slog.String("action", string(r.Action)),
	)
}

type Engine struct {
	rules []*Rule
}

// NewEngine builds an engine from an inline rules JSON string or, when that
// is empty, from the config rule set. Invalid rules are disabled with a
// warning rather than failing startup.
func NewEngine(rulesJSON string, ruleSet []config.Rule) (*Engine, error) {
	var rules []*Rule

	if len(ruleSet) > 0 {
		for _, r := range ruleSet {
			rules = append(rules, &Rule{
				Enabled:    true,
				Type:       RuleType(r.Type),
				MatchValue: r.MatchValue,
				Action:     Action(r.Action),
			})
		}
	} else {
		if rulesJSON == "" {
			return &Engine{}, nil
		}
		if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
		}
	}

	validate := validator.New()

	for _, r := range rules {
		if !r.Enabled {
			continue
		}

		if err := validate.Struct(r); err != nil {
			slog.Warn("Invalid rule", slog.Any("rule", r), slog.Any("error", err))
			r.Enabled = false
			continue
		}

		switch r.Type {
		case RuleTypeURLRegex:
			pattern := "(?i)" + r.MatchValue
			regex, err := regexp2.Compile(pattern, regexp2.None)
			if err != nil {
				slog.Warn("regexp2.Compile", slog.String("regex", pattern), slog.Any("error", err))
				r.Enabled = false
				continue
			}
			r.regex = regex
		case RuleTypeIPCIDR, RuleTypeSrcIP:
			v := r.MatchValue
			if !strings.Contains(v, "/") {
				v += "/32"
			}
			_, ipNet, err := net.ParseCIDR(v)
			if err != nil {
				slog.Warn("net.ParseCIDR", slog.String("cidr", v), slog.Any("error", err))
				r.Enabled = false
				continue
			}
			r.ipNet = ipNet
		case RuleTypeDestPort:
			port, err := strconv.Atoi(r.MatchValue)
			if err != nil || port <= 0 || port > 65535 {
				slog.Warn("Invalid port", slog.String("port", r.MatchValue))
				r.Enabled = false
				continue
			}
			r.port = port
		}
	}

	enabled := rules[:0]
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return &Engine{rules: enabled}, nil
}

// Decide returns the action of the first matching rule. Requests no rule
// claims are rewritten.
func (e *Engine) Decide(m *Metadata) Action {
	for _, r := range e.rules {
		if r.Match(m) {
			slog.Debug("Rule matched", slog.Any("rule", r), slog.String("host", m.Host))
			return r.Action
		}
	}
	return ActionRewrite
}

// Rules returns the active rule list for the management API.
func (e *Engine) Rules() []*Rule {
	return e.rules
}
