package mcp

import (
	"strings"
	"testing"
)

func TestQualifiedToolNameSanitizes(t *testing.T) {
	used := make(map[string]struct{})
	name := qualifiedToolName("git-hub", "search/repo", used)
	if name != "mcp__git_hub__search_repo" {
		t.Fatalf("expected sanitized qualified name, got %q", name)
	}
	if !IsMCPCall(name) {
		t.Fatalf("expected %q to be recognized as an MCP call name", name)
	}
}

func TestQualifiedToolNameDeduplicates(t *testing.T) {
	used := make(map[string]struct{})
	first := qualifiedToolName("foo-bar", "baz", used)
	second := qualifiedToolName("foo_bar", "baz", used)

	if first == second {
		t.Fatalf("expected unique name for duplicate tool, got %q", second)
	}
	if !strings.HasPrefix(second, first+"_") {
		t.Fatalf("expected duplicate name to include hash suffix, got %q", second)
	}
}

func TestQualifiedToolNameTruncates(t *testing.T) {
	used := make(map[string]struct{})
	serverID := strings.Repeat("server", 10)
	toolName := strings.Repeat("tool", 10)
	name := qualifiedToolName(serverID, toolName, used)

	if len(name) > maxToolNameLen {
		t.Fatalf("expected name length <= %d, got %d (%q)", maxToolNameLen, len(name), name)
	}
	if !strings.HasSuffix(name, toolNameHash(serverID, toolName)) {
		t.Fatalf("expected truncated name to include hash suffix, got %q", name)
	}
}

func TestFormatToolCallResultFlattensText(t *testing.T) {
	result := &ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "line one"}, {Type: "text", Text: "line two"}},
	}
	content, isError := formatToolCallResult(result)
	if isError {
		t.Fatalf("expected isError false")
	}
	if content != "line one\nline two" {
		t.Fatalf("expected joined text, got %q", content)
	}
}

func TestFormatToolCallResultFallsBackToJSONForNonText(t *testing.T) {
	result := &ToolCallResult{
		Content: []ToolResultContent{{Type: "image", Data: "base64data", MimeType: "image/png"}},
		IsError: true,
	}
	content, isError := formatToolCallResult(result)
	if !isError {
		t.Fatalf("expected isError true")
	}
	if !strings.Contains(content, "base64data") {
		t.Fatalf("expected JSON fallback to contain image data, got %q", content)
	}
}
