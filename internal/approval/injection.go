// Package approval implements spec.md §4.K: skill/mention token extraction
// from user text, and local-image resize/encode for attachment injection.
package approval

import (
	"regexp"

	"github.com/turnkit/agentcore/internal/rollout"
)

// bareSkillToken matches a bare "$name" mention; ambiguous bare names (no
// match among enabled skills) are skipped per spec.md §4.K.
var bareSkillToken = regexp.MustCompile(`\$([A-Za-z0-9_-]+)`)

// linkedSkillToken matches the explicit "[$name](resource://path)" form,
// which is preferred over a bare name when both are present.
var linkedSkillToken = regexp.MustCompile(`\[\$([A-Za-z0-9_-]+)\]\(resource://([^)]+)\)`)

// mentionedToolURI matches app://, mcp://, and skill:// paths anywhere in
// the text; these are routed to their respective handlers rather than
// injected as skill bodies.
var mentionedToolURI = regexp.MustCompile(`\b(app|mcp|skill)://([^\s)]+)`)

// Mention is one recognized app://, mcp://, or skill:// reference.
type Mention struct {
	Scheme string // "app", "mcp", or "skill"
	Path   string
}

// Injection is the result of scanning one piece of user text: skill bodies
// to inject as message items, plus app/mcp mentions forwarded to their own
// handlers (not injected).
type Injection struct {
	SkillMessages []rollout.ResponseItem
	Mentions      []Mention
}

// SkillEntry is the metadata a resolver returns for one eligible skill;
// the extractor only needs the name back to look up its body.
type SkillEntry struct {
	Name string
}

// SkillResolver is the subset of an embedder's skill registry the
// extractor needs to turn a "$name" or "[$name](resource://...)" token
// into an injected message.
type SkillResolver interface {
	GetEligible(name string) (*SkillEntry, bool)
	LoadContent(name string) (string, error)
}

// Extract scans text for skill tokens and app/mcp/skill mentions, resolving
// skill tokens against resolver. Explicit linked paths are preferred over
// ambiguous bare names; a bare name with no matching eligible skill is
// skipped rather than treated as an error. Blocked/disabled skills (not
// returned by GetEligible) are always skipped.
func Extract(text string, resolver SkillResolver) Injection {
	var out Injection

	linked := linkedSkillToken.FindAllStringSubmatch(text, -1)
	resolvedNames := make(map[string]bool, len(linked))
	for _, m := range linked {
		name := m[1]
		resolvedNames[name] = true
		if msg, ok := resolveSkill(name, resolver); ok {
			out.SkillMessages = append(out.SkillMessages, msg)
		}
	}

	bareWithoutLink := stripLinked(text)
	for _, m := range bareSkillToken.FindAllStringSubmatch(bareWithoutLink, -1) {
		name := m[1]
		if resolvedNames[name] {
			continue // already handled via its explicit linked form
		}
		resolvedNames[name] = true
		if msg, ok := resolveSkill(name, resolver); ok {
			out.SkillMessages = append(out.SkillMessages, msg)
		}
		// Ambiguous bare names (no eligible skill) are silently skipped.
	}

	for _, m := range mentionedToolURI.FindAllStringSubmatch(text, -1) {
		out.Mentions = append(out.Mentions, Mention{Scheme: m[1], Path: m[2]})
	}

	return out
}

// stripLinked removes already-matched "[$name](resource://...)" spans so
// the bare-token pass doesn't double-match the "$name" inside them.
func stripLinked(text string) string {
	return linkedSkillToken.ReplaceAllString(text, "")
}

func resolveSkill(name string, resolver SkillResolver) (rollout.ResponseItem, bool) {
	entry, ok := resolver.GetEligible(name)
	if !ok || entry == nil {
		return rollout.ResponseItem{}, false
	}
	body, err := resolver.LoadContent(name)
	if err != nil {
		return rollout.ResponseItem{}, false
	}
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemMessage,
		Role:    "user",
		Content: body,
		Name:    name,
	}, true
}
