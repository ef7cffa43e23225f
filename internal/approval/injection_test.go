package approval

import (
	"errors"
	"testing"
)

type fakeResolver struct {
	eligible map[string]*SkillEntry
	content  map[string]string
}

func (f *fakeResolver) GetEligible(name string) (*SkillEntry, bool) {
	e, ok := f.eligible[name]
	return e, ok
}

func (f *fakeResolver) LoadContent(name string) (string, error) {
	c, ok := f.content[name]
	if !ok {
		return "", errors.New("no content")
	}
	return c, nil
}

func newResolver(names ...string) *fakeResolver {
	r := &fakeResolver{eligible: map[string]*SkillEntry{}, content: map[string]string{}}
	for _, n := range names {
		r.eligible[n] = &SkillEntry{Name: n}
		r.content[n] = "body of " + n
	}
	return r
}

func TestExtract_BareTokenResolvesEligibleSkill(t *testing.T) {
	r := newResolver("deploy")
	inj := Extract("please run $deploy now", r)
	if len(inj.SkillMessages) != 1 || inj.SkillMessages[0].Content != "body of deploy" {
		t.Fatalf("SkillMessages = %+v, want one message with deploy's body", inj.SkillMessages)
	}
}

func TestExtract_AmbiguousBareNameSkipped(t *testing.T) {
	r := newResolver() // nothing eligible
	inj := Extract("please run $deploy now", r)
	if len(inj.SkillMessages) != 0 {
		t.Fatalf("SkillMessages = %+v, want none for an unresolvable bare name", inj.SkillMessages)
	}
}

func TestExtract_LinkedFormPreferredOverBareDuplicate(t *testing.T) {
	r := newResolver("deploy")
	inj := Extract("see [$deploy](resource://skills/deploy) and also $deploy", r)
	if len(inj.SkillMessages) != 1 {
		t.Fatalf("SkillMessages = %+v, want exactly one (no duplicate injection)", inj.SkillMessages)
	}
}

func TestExtract_MentionsRoutedNotInjected(t *testing.T) {
	r := newResolver()
	inj := Extract("check app://notes and mcp://github/issues and skill://deploy", r)
	if len(inj.SkillMessages) != 0 {
		t.Fatalf("SkillMessages = %+v, want none (mentions are not skill bodies)", inj.SkillMessages)
	}
	want := map[string]string{"app": "notes", "mcp": "github/issues", "skill": "deploy"}
	if len(inj.Mentions) != 3 {
		t.Fatalf("Mentions = %+v, want 3", inj.Mentions)
	}
	for _, m := range inj.Mentions {
		if want[m.Scheme] != m.Path {
			t.Fatalf("mention %+v did not match expected path %q", m, want[m.Scheme])
		}
	}
}

func TestExtract_BlockedSkillSkipped(t *testing.T) {
	r := newResolver() // GetEligible never returns the blocked skill
	inj := Extract("[$blocked](resource://skills/blocked)", r)
	if len(inj.SkillMessages) != 0 {
		t.Fatalf("SkillMessages = %+v, want none for a blocked/disabled skill", inj.SkillMessages)
	}
}
