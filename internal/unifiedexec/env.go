package unifiedexec

// noiseSuppressionEnv is the fixed set of environment variables applied to
// every spawned child, overriding caller-supplied values, per spec.md §4.G.
var noiseSuppressionEnv = map[string]string{
	"NO_COLOR":  "1",
	"TERM":      "dumb",
	"LANG":      "C.UTF-8",
	"LC_CTYPE":  "C.UTF-8",
	"LC_ALL":    "C.UTF-8",
	"COLORTERM": "",
	"PAGER":     "cat",
	"GIT_PAGER": "cat",
	"GH_PAGER":  "cat",
	"CODEX_CI":  "1",
}

// buildEnv merges the caller's env with the noise-suppression overrides,
// the overrides always winning, then renders it as "KEY=VALUE" pairs.
func buildEnv(base map[string]string) []string {
	merged := make(map[string]string, len(base)+len(noiseSuppressionEnv))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range noiseSuppressionEnv {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
