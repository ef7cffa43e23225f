package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const maxToolNameLen = 64

// qualifiedSep is the separator spec.md §4.J's dispatch table uses to
// namespace an MCP tool under its server: "mcp__<server>__<tool>".
const qualifiedSep = "__"

// ToolResult is the outcome of one dispatched MCP tool/resource/prompt
// call, independent of how the turn orchestrator renders it into history.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolCaller defines the MCP tool execution contract used by the bridge.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ResourceReader defines the MCP resource read contract used by the bridge.
type ResourceReader interface {
	ReadResource(ctx context.Context, serverID, uri string) ([]*ResourceContent, error)
}

// PromptGetter defines the MCP prompt get contract used by the bridge.
type PromptGetter interface {
	GetPrompt(ctx context.Context, serverID, name string, arguments map[string]string) (*GetPromptResult, error)
}

// Dispatch resolves a spec.md §4.J function-call name of the form
// "mcp__<server>__<tool>" against a live Manager and executes it. This is
// the only entry point the turn orchestrator needs into this package —
// everything else here (naming, result formatting) exists to serve it.
type Dispatch struct {
	mgr *Manager
	// qualified maps a collision-resolved qualified name back to its
	// (serverID, raw tool name) pair, since long or unicode-heavy tool
	// names get hashed rather than embedded verbatim.
	qualified map[string]toolEntry
}

// NewDispatch builds the qualified-name table for every tool currently
// known to mgr. Call Refresh after servers connect or their tool lists
// change.
func NewDispatch(mgr *Manager) *Dispatch {
	d := &Dispatch{mgr: mgr}
	d.Refresh()
	return d
}

// Refresh rebuilds the qualified-name table from the manager's current
// tool listings.
func (d *Dispatch) Refresh() {
	used := make(map[string]struct{})
	table := make(map[string]toolEntry)
	for _, entry := range listToolsSorted(d.mgr) {
		name := qualifiedToolName(entry.serverID, entry.tool.Name, used)
		table[name] = entry
	}
	d.qualified = table
}

// Names returns every registered "mcp__<server>__<tool>" name, sorted.
func (d *Dispatch) Names() []string {
	names := make([]string, 0, len(d.qualified))
	for name := range d.qualified {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call executes the tool named by a "mcp__<server>__<tool>" function-call
// name, per spec.md §4.J's MCP dispatch row.
func (d *Dispatch) Call(ctx context.Context, qualifiedName string, arguments map[string]any) (*ToolResult, error) {
	entry, ok := d.qualified[qualifiedName]
	if !ok {
		return nil, fmt.Errorf("mcp: unknown tool %q", qualifiedName)
	}
	result, err := d.mgr.CallTool(ctx, entry.serverID, entry.tool.Name, arguments)
	if err != nil {
		return nil, err
	}
	content, isError := formatToolCallResult(result)
	return &ToolResult{Content: content, IsError: isError}, nil
}

// IsMCPCall reports whether name follows the "mcp__<server>__<tool>"
// convention this package dispatches.
func IsMCPCall(name string) bool {
	return strings.HasPrefix(name, "mcp"+qualifiedSep)
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}

	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Name < tools[j].Name
		})
		for _, tool := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: tool})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// qualifiedToolName builds "mcp__<server>__<tool>", sanitizing both parts
// to the character set most provider function-call APIs accept and
// disambiguating collisions introduced by sanitization or truncation.
func qualifiedToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp" + qualifiedSep + sanitizeToolPart(serverID) + qualifiedSep + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}

	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}

	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}
