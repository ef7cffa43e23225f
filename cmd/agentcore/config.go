package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/turnkit/agentcore/internal/mcp"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration, loaded with gopkg.in/yaml.v3 the
// same way the teacher's internal/config package loads nexus.yaml. There is
// no separate internal/config package here: agentcore's configuration
// surface is this one small struct plus flags/env, not a gateway's
// multi-channel settings tree.
type Config struct {
	Model             string            `yaml:"model"`
	APIBaseURL        string            `yaml:"api_base_url"`
	Transport         string            `yaml:"transport"` // "sse" or "ws"
	Shell             string            `yaml:"shell"`
	ApprovalPolicy    string            `yaml:"approval_policy"` // never, on-failure, untrusted, always
	SandboxPolicy     string            `yaml:"sandbox_policy"`
	ReasoningEffort   string            `yaml:"reasoning_effort"`
	ReasoningSummary  string            `yaml:"reasoning_summary"`
	ParallelToolCalls bool              `yaml:"parallel_tool_calls"`
	MCPTimeout        time.Duration     `yaml:"mcp_timeout"`
	Home              string            `yaml:"home"` // rollout + state db directory, default ~/.agentcore
	UserInstructions  string            `yaml:"user_instructions"`
	MCP               mcp.Config        `yaml:"mcp"`
	Features          map[string]string `yaml:"features"`
}

// DefaultConfigPath mirrors the teacher's profile.DefaultConfigPath: a
// single well-known path under the user's home directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentcore.yaml"
	}
	return filepath.Join(home, ".agentcore", "agentcore.yaml")
}

// DefaultHome returns the directory rollout files and the state database
// live under when Config.Home is unset.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentcore"
	}
	return filepath.Join(home, ".agentcore")
}

func defaultConfig() *Config {
	return &Config{
		Model:             "gpt-5-codex",
		APIBaseURL:        "https://api.openai.com/v1",
		Transport:         "sse",
		Shell:             "/bin/bash",
		ApprovalPolicy:    "untrusted",
		SandboxPolicy:     "workspace-write",
		ParallelToolCalls: true,
		MCPTimeout:        30 * time.Second,
		Home:              DefaultHome(),
	}
}

// LoadConfig reads path, falling back to built-in defaults for any field
// the file omits (and for the file being entirely absent).
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Home == "" {
		cfg.Home = DefaultHome()
	}
	return cfg, nil
}
