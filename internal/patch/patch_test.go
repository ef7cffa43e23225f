package patch

import (
	"errors"
	"strings"
	"testing"
)

type fakeReader map[string]string

func (f fakeReader) ReadFile(path string) (string, error) {
	c, ok := f[path]
	if !ok {
		return "", errors.New("no such file: " + path)
	}
	return c, nil
}

func TestApplyAddFileDirectArgv(t *testing.T) {
	argv := []string{"apply_patch", "*** Begin Patch\n*** Add File: foo\n+hi\n*** End Patch"}
	inv, err := Classify(argv, "/T")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	action, err := Apply(inv.Body, "/T", fakeReader{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := action.Changes["/T/foo"]
	if !ok {
		t.Fatalf("missing change for /T/foo, got %+v", action.Changes)
	}
	if got.Kind != KindAdd || got.Content != "hi\n" {
		t.Fatalf("got %+v", got)
	}
}

func TestApplyViaBashHeredocWithCd(t *testing.T) {
	argv := []string{"bash", "-lc", "cd sub && apply_patch <<'EOF'\n*** Begin Patch\n*** Add File: a.txt\n+x\n*** End Patch\nEOF"}
	inv, err := Classify(argv, "/T")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if inv.Workdir != "/T/sub" {
		t.Fatalf("workdir = %q, want /T/sub", inv.Workdir)
	}
	action, err := Apply(inv.Body, inv.Workdir, fakeReader{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := action.Changes["/T/sub/a.txt"]
	if !ok || got.Content != "x\n" {
		t.Fatalf("got %+v", action.Changes)
	}
}

func TestHeredocWithSemicolonIsRejected(t *testing.T) {
	argv := []string{"bash", "-lc", "cd sub; apply_patch <<'EOF'\n*** Begin Patch\n*** Add File: a.txt\n+x\n*** End Patch\nEOF"}
	_, err := Classify(argv, "/T")
	if !IsNotApplyPatch(err) {
		t.Fatalf("want NotApplyPatch, got %v", err)
	}
}

func TestImplicitInvocationRefused(t *testing.T) {
	argv := []string{"*** Begin Patch\n*** Add File: a\n+x\n*** End Patch"}
	_, err := Classify(argv, "/T")
	if !errors.Is(err, ErrImplicitInvocation) {
		t.Fatalf("want ErrImplicitInvocation, got %v", err)
	}
}

func TestUpdateProducesUnifiedDiff(t *testing.T) {
	orig := "one\ntwo\nthree\n"
	patchText := "*** Begin Patch\n*** Update File: f.txt\n@@\n one\n-two\n+TWO\n three\n*** End Patch"
	action, err := Apply(patchText, "/T", fakeReader{"/T/f.txt": orig})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	change := action.Changes["/T/f.txt"]
	if change.NewContent != "one\nTWO\nthree\n" {
		t.Fatalf("new content = %q", change.NewContent)
	}
	if !strings.Contains(change.UnifiedDiff, "@@ -1,3 +1,3 @@") {
		t.Fatalf("diff header missing: %q", change.UnifiedDiff)
	}
	if !strings.Contains(change.UnifiedDiff, "-two\n+TWO\n") {
		t.Fatalf("diff body wrong: %q", change.UnifiedDiff)
	}
}

func TestDeleteReadsPreImage(t *testing.T) {
	patchText := "*** Begin Patch\n*** Delete File: gone.txt\n*** End Patch"
	action, err := Apply(patchText, "/T", fakeReader{"/T/gone.txt": "bye\n"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	change := action.Changes["/T/gone.txt"]
	if change.Kind != KindDelete || change.Content != "bye\n" {
		t.Fatalf("got %+v", change)
	}
}

func TestUpdateWithMove(t *testing.T) {
	patchText := "*** Begin Patch\n*** Update File: old.txt\n*** Move to: new.txt\n@@\n-one\n+uno\n*** End Patch"
	action, err := Apply(patchText, "/T", fakeReader{"/T/old.txt": "one\n"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	change, ok := action.Changes["/T/new.txt"]
	if !ok {
		t.Fatalf("expected change keyed at move destination, got %+v", action.Changes)
	}
	if change.NewContent != "uno\n" {
		t.Fatalf("new content = %q", change.NewContent)
	}
}

func TestMissingContextFails(t *testing.T) {
	patchText := "*** Begin Patch\n*** Update File: f.txt\n@@\n nope\n-two\n+TWO\n*** End Patch"
	_, err := Apply(patchText, "/T", fakeReader{"/T/f.txt": "one\ntwo\nthree\n"})
	if !errors.Is(err, ErrContextNotFound) {
		t.Fatalf("want ErrContextNotFound, got %v", err)
	}
}
