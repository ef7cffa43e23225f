package patch

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// Invocation is the resolved result of recognizing an apply_patch
// invocation: the patch body text, and an optional effective working
// directory when the invocation was wrapped in `cd <path> && apply_patch`.
type Invocation struct {
	Body    string
	Workdir string // "" if the invocation did not change cwd
}

type shellKind int

const (
	shellUnknown shellKind = iota
	shellUnix              // bash | zsh | sh, flag -lc | -c
	shellPowerShell        // pwsh | powershell, flag -Command
	shellCmd                // cmd, flag /c
)

// classifyShellName maps a shell invocation's argv[0] to a shellKind,
// ignoring any directory prefix and a Windows .exe suffix.
func classifyShellName(name string) shellKind {
	base := filepath.Base(name)
	base = strings.TrimSuffix(strings.ToLower(base), ".exe")
	switch base {
	case "bash", "zsh", "sh":
		return shellUnix
	case "pwsh", "powershell":
		return shellPowerShell
	case "cmd":
		return shellCmd
	default:
		return shellUnknown
	}
}

func classifyShell(kind shellKind, flag string) bool {
	switch kind {
	case shellUnix:
		return flag == "-lc" || flag == "-c"
	case shellPowerShell:
		return strings.EqualFold(flag, "-Command")
	case shellCmd:
		return strings.EqualFold(flag, "/c")
	default:
		return false
	}
}

// canSkipFlag reports whether skip is a recognized pre-flag for kind; only
// PowerShell's -NoProfile is accepted.
func canSkipFlag(kind shellKind, skip string) bool {
	return kind == shellPowerShell && strings.EqualFold(skip, "-NoProfile")
}

// cdArgPattern matches a single positional argument to `cd`: a bare word with no
// shell metacharacters, or a single/double quoted string.
const cdArgPattern = `(?:'([^']*)'|"([^"]*)"|([^\s'"&|;<>]+))`

var scriptRe = regexp.MustCompile(
	`^\s*(?:cd\s+` + cdArgPattern + `\s*&&\s*)?(apply_patch|applypatch)\s*<<'EOF'\n([\s\S]*?)\nEOF\s*$`,
)

// Classify recognizes argv as one of the three apply_patch invocation forms
// described in spec §4.B and returns the patch body and effective working
// directory. It does not touch the filesystem.
func Classify(argv []string, cwd string) (*Invocation, error) {
	switch {
	case len(argv) == 1:
		if looksLikeBarePatchText(argv[0]) {
			return nil, ErrImplicitInvocation
		}
		return nil, &ExtractHeredocError{Kind: HeredocNotApplyPatch, Msg: "single argv element is not a patch body"}

	case len(argv) == 2 && isApplyPatchToken(argv[0]):
		return &Invocation{Body: argv[1]}, nil

	case len(argv) == 3:
		return classifyShellScript(argv[0], argv[1], argv[2], cwd)

	case len(argv) == 4:
		return classifyShellScriptWithSkip(argv[0], argv[1], argv[2], argv[3], cwd)

	default:
		return nil, &ExtractHeredocError{Kind: HeredocNotApplyPatch, Msg: "argv does not match any recognized apply_patch shape"}
	}
}

func looksLikeBarePatchText(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), beginPatchLine)
}

func isApplyPatchToken(tok string) bool {
	return tok == "apply_patch" || tok == "applypatch"
}

func classifyShellScript(shell, flag, script, cwd string) (*Invocation, error) {
	kind := classifyShellName(shell)
	if kind == shellUnknown {
		return nil, &ExtractHeredocError{Kind: HeredocUnknownShell, Msg: "unrecognized shell: " + shell}
	}
	if !classifyShell(kind, flag) {
		return nil, &ExtractHeredocError{Kind: HeredocUnknownShell, Msg: "unrecognized flag " + flag + " for shell " + shell}
	}
	inv, err := parseShellScript(script, cwd)
	if err != nil && looksLikeBarePatchText(script) {
		return nil, ErrImplicitInvocation
	}
	return inv, err
}

func classifyShellScriptWithSkip(shell, skip, flag, script, cwd string) (*Invocation, error) {
	kind := classifyShellName(shell)
	if kind == shellUnknown {
		return nil, &ExtractHeredocError{Kind: HeredocUnknownShell, Msg: "unrecognized shell: " + shell}
	}
	if !canSkipFlag(kind, skip) {
		return nil, &ExtractHeredocError{Kind: HeredocUnknownShell, Msg: "unrecognized pre-flag " + skip + " for shell " + shell}
	}
	if !classifyShell(kind, flag) {
		return nil, &ExtractHeredocError{Kind: HeredocUnknownShell, Msg: "unrecognized flag " + flag + " for shell " + shell}
	}
	inv, err := parseShellScript(script, cwd)
	if err != nil && looksLikeBarePatchText(script) {
		return nil, ErrImplicitInvocation
	}
	return inv, err
}

// parseShellScript matches the script body against the strict grammar:
//
//	apply_patch <<'EOF'\n<body>\nEOF
//	cd <path> && apply_patch <<'EOF'\n<body>\nEOF
//
// The heredoc-redirected statement must be the sole top-level statement; any
// other connector between cd and apply_patch (";", "||", "|"), any extra
// argument to cd, or any trailing statement after the closing delimiter is
// rejected as NotApplyPatch — this module does not further distinguish why,
// matching the reference behavior where a malformed near-miss is reported
// identically to an unrelated script.
func parseShellScript(script, cwd string) (*Invocation, error) {
	m := scriptRe.FindStringSubmatch(script)
	if m == nil {
		return nil, &ExtractHeredocError{Kind: HeredocMalformedHeredoc, Msg: "script does not match the apply_patch heredoc grammar"}
	}
	// Submatch indices: 1=cd single-quoted, 2=cd double-quoted, 3=cd bare,
	// 4=apply_patch token, 5=body.
	cdArg := firstNonEmpty(m[1], m[2], m[3])
	token := m[4]
	body := m[5]

	if !isApplyPatchToken(token) {
		return nil, &ExtractHeredocError{Kind: HeredocNotApplyPatch, Msg: "heredoc command is not apply_patch: " + token}
	}

	inv := &Invocation{Body: body}
	if cdArg != "" {
		if filepath.IsAbs(cdArg) {
			inv.Workdir = filepath.Clean(cdArg)
		} else {
			inv.Workdir = filepath.Clean(filepath.Join(cwd, cdArg))
		}
	}
	return inv, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsNotApplyPatch reports whether err is (or wraps) the generic
// "not recognized" classification.
func IsNotApplyPatch(err error) bool {
	return errors.Is(err, ErrNotApplyPatch)
}
