package mcp

// ToolSummary describes one MCP tool in its prompt-assembly-ready form:
// the qualified function-call name a model sees, plus enough metadata for
// the turn orchestrator to show it in a system prompt or tool listing.
type ToolSummary struct {
	Name        string
	Description string
	Schema      []byte
	ServerID    string
	RawName     string
}

// ToolSummaries returns one summary per tool known to d, keyed by the
// "mcp__<server>__<tool>" name the turn orchestrator dispatches on.
func (d *Dispatch) ToolSummaries() []ToolSummary {
	if d == nil {
		return nil
	}

	names := d.Names()
	summaries := make([]ToolSummary, 0, len(names))
	for _, name := range names {
		entry := d.qualified[name]
		summaries = append(summaries, ToolSummary{
			Name:        name,
			Description: entry.tool.Description,
			Schema:      entry.tool.InputSchema,
			ServerID:    entry.serverID,
			RawName:     entry.tool.Name,
		})
	}
	return summaries
}
