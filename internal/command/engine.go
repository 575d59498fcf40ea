// Package command parses chat messages into VFX or farewell commands and
// keeps the cooldown books.
package command

import (
	"regexp"
	"strings"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

type Kind int

const (
	KindNone Kind = iota
	KindVFX
	KindFarewell
)

type Input struct {
	Message  string
	Username string
	UserID   string
	Platform core.Platform
}

type Result struct {
	Kind       Kind
	CommandKey string
	Matched    string // the trigger or keyword that fired
	Heavy      bool
	// OnCooldown means the message is still accepted as chat but the
	// command must not execute.
	OnCooldown bool
}

type keywordRule struct {
	commandKey string
	keyword    string
	re         *regexp.Regexp
	heavy      bool
}

type Engine struct {
	triggers  map[string]triggerRule // lowered trigger → rule
	keywords  []keywordRule
	byeTokens map[string]struct{}
	cooldowns *Cooldowns
	enabled   bool
}

type triggerRule struct {
	commandKey string
	heavy      bool
}

func NewEngine(cfg *config.Config, cooldowns *Cooldowns) *Engine {
	e := &Engine{
		triggers:  map[string]triggerRule{},
		byeTokens: map[string]struct{}{},
		cooldowns: cooldowns,
		enabled:   cfg.Commands.Enabled,
	}
	for key, vc := range cfg.VFX {
		for _, trig := range vc.Triggers {
			e.triggers[strings.ToLower(trig)] = triggerRule{commandKey: key, heavy: vc.Heavy}
		}
		for _, kw := range vc.Keywords {
			re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			e.keywords = append(e.keywords, keywordRule{commandKey: key, keyword: kw, re: re, heavy: vc.Heavy})
		}
	}
	if fc, ok := cfg.Classes["farewells"]; ok {
		for _, tok := range fc.ByeTokens {
			e.byeTokens[strings.ToLower(tok)] = struct{}{}
		}
	}
	return e
}

// Parse classifies a message. Trigger matches (first token) beat keyword
// matches; farewells are checked before VFX keywords so "!bye" never fires
// an effect.
func (e *Engine) Parse(in Input) Result {
	if !e.enabled {
		return Result{Kind: KindNone}
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return Result{Kind: KindNone}
	}

	first := msg
	if idx := strings.IndexFunc(msg, isSpace); idx >= 0 {
		first = msg[:idx]
	}
	firstLower := strings.ToLower(first)

	if _, ok := e.byeTokens[firstLower]; ok {
		return Result{Kind: KindFarewell, Matched: first}
	}

	if rule, ok := e.triggers[firstLower]; ok {
		return e.withCooldown(in, Result{
			Kind:       KindVFX,
			CommandKey: rule.commandKey,
			Matched:    first,
			Heavy:      rule.heavy,
		})
	}

	for _, kr := range e.keywords {
		if kr.re.MatchString(msg) {
			return e.withCooldown(in, Result{
				Kind:       KindVFX,
				CommandKey: kr.commandKey,
				Matched:    kr.keyword,
				Heavy:      kr.heavy,
			})
		}
	}

	return Result{Kind: KindNone}
}

func (e *Engine) withCooldown(in Input, r Result) Result {
	if e.cooldowns == nil {
		return r
	}
	if !e.cooldowns.Allow(in.UserID, r.CommandKey, r.Heavy) {
		r.OnCooldown = true
	}
	return r
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
