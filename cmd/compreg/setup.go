package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/util"
)

// mcpServerName is the key compreg registers under in agent configs.
const mcpServerName = "compreg"

// agentDef describes how to detect one MCP-capable agent and register the
// compreg server with it.
type agentDef struct {
	id          string
	displayName string
	method      string            // "cli" or "file"
	binary      string            // cli agents: binary on PATH
	dirMarkers  []string          // file agents: dirs that indicate presence
	configPath  func() string     // file agents: resolved config file
	serversKey  string            // "servers" (VS Code) or "mcpServers"
	needsScope  bool              // prompt for project/user scope
	extraFields map[string]string // e.g. "type": "stdio" for VS Code
}

// detectedAgent is an agent found on this machine.
type detectedAgent struct {
	def          agentDef
	configured   bool
	resolvedPath string
}

type setupOptions struct {
	auto         bool
	registryPath string
}

// Replaceable for testing.
var (
	lookPathFunc = exec.LookPath
	statFunc     = os.Stat
)

var knownAgents = []agentDef{
	{
		id: "claude_code", displayName: "Claude Code",
		method: "cli", binary: "claude", needsScope: true,
	},
	{
		id: "openai_codex", displayName: "OpenAI Codex",
		method: "cli", binary: "codex", needsScope: true,
	},
	{
		id: "vscode_copilot", displayName: "VS Code Copilot",
		method: "file", dirMarkers: []string{".vscode"},
		configPath:  func() string { return filepath.Join(".vscode", "mcp.json") },
		serversKey:  "servers",
		extraFields: map[string]string{"type": "stdio"},
	},
	{
		id: "cursor", displayName: "Cursor",
		method: "file", dirMarkers: []string{".cursor"},
		configPath: func() string { return filepath.Join(".cursor", "mcp.json") },
		serversKey: "mcpServers",
	},
	{
		id: "claude_desktop", displayName: "Claude Desktop",
		method:     "file",
		configPath: claudeDesktopConfigPath,
		serversKey: "mcpServers",
	},
}

func setupCmd() *cobra.Command {
	var opts setupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the compreg MCP server with detected AI agents",
		Long: `Detect MCP-capable agents (CLI tools on PATH and editor config
directories) and add a "compreg serve" entry to each one's MCP config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			executeSetup(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Configure every detected agent without prompting")
	cmd.Flags().StringVar(&opts.registryPath, "registry", "", "Registry path passed to compreg serve")

	return cmd
}

func claudeDesktopConfigPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Claude", "claude_desktop_config.json")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")
	}
}

// detectAgents returns the known agents present on this machine.
func detectAgents() []detectedAgent {
	var detected []detectedAgent

	for _, def := range knownAgents {
		switch def.method {
		case "cli":
			if _, err := lookPathFunc(def.binary); err == nil {
				detected = append(detected, detectedAgent{
					def:        def,
					configured: hasServerEntry(".mcp.json", "mcpServers"),
				})
			}

		case "file":
			path, found := locateConfig(def)
			if found {
				d := detectedAgent{def: def, resolvedPath: path}
				if path != "" {
					d.configured = hasServerEntry(path, def.serversKey)
				}
				detected = append(detected, d)
			}
		}
	}

	return detected
}

// locateConfig finds a file agent by its dir markers, or by the parent of
// its config file when it has none.
func locateConfig(def agentDef) (string, bool) {
	for _, marker := range def.dirMarkers {
		if _, err := statFunc(marker); err == nil {
			if def.configPath == nil {
				return "", true
			}
			return def.configPath(), true
		}
	}
	if len(def.dirMarkers) == 0 && def.configPath != nil {
		path := def.configPath()
		if _, err := statFunc(filepath.Dir(path)); err == nil {
			return path, true
		}
	}
	return "", false
}

// hasServerEntry reports whether the JSON file at path already lists the
// compreg server under serversKey.
func hasServerEntry(path, serversKey string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return false
	}
	servers, ok := config[serversKey].(map[string]any)
	if !ok {
		return false
	}
	_, exists := servers[mcpServerName]
	return exists
}

func serveArgs(registryPath string) []string {
	args := []string{"serve"}
	if registryPath != "" {
		args = append(args, "--registry", registryPath)
	}
	return args
}

// serverEntry is the MCP config object for compreg.
func serverEntry(registryPath string, extra map[string]string) map[string]any {
	args := serveArgs(registryPath)
	anyArgs := make([]any, len(args))
	for i, a := range args {
		anyArgs[i] = a
	}
	entry := map[string]any{
		"command": mcpServerName,
		"args":    anyArgs,
	}
	for k, v := range extra {
		entry[k] = v
	}
	return entry
}

// mergeServerEntry adds the compreg entry under serversKey in existing
// (which may be empty). It returns nil, nil when the entry is already there.
func mergeServerEntry(existing []byte, serversKey, registryPath string, extra map[string]string) ([]byte, error) {
	config := make(map[string]any)
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &config); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	servers, ok := config[serversKey].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	if _, exists := servers[mcpServerName]; exists {
		return nil, nil
	}

	servers[mcpServerName] = serverEntry(registryPath, extra)
	config[serversKey] = servers

	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// configureCLIAgent runs `<binary> mcp add` with the chosen scope.
func configureCLIAgent(def agentDef, scope, registryPath string) error {
	args := []string{"mcp", "add"}
	if scope != "" {
		args = append(args, "--scope", scope)
	}
	args = append(args, mcpServerName, "--", mcpServerName)
	args = append(args, serveArgs(registryPath)...)

	cmd := exec.Command(def.binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// configureFileAgent merges the compreg entry into the agent's config file.
func configureFileAgent(def agentDef, path, registryPath string) error {
	var existing []byte
	if data, err := os.ReadFile(path); err == nil {
		existing = data
	}

	merged, err := mergeServerEntry(existing, def.serversKey, registryPath, def.extraFields)
	if err != nil {
		return err
	}
	if merged == nil {
		return nil
	}
	return util.WriteFileAtomic(path, merged, 0644)
}

// promptYesNo reads Y/n; empty input and EOF mean yes.
func promptYesNo(r *bufio.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s ", question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return true
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

// promptScope returns "project", "user", or "" to skip.
func promptScope(r *bufio.Reader, w io.Writer, agentName string) string {
	fmt.Fprintf(w, "\n%s: add the compreg MCP server?\n", agentName)
	fmt.Fprintln(w, "  [1] Project scope (shared with team)")
	fmt.Fprintln(w, "  [2] User scope (personal, global)")
	fmt.Fprintln(w, "  [3] Skip")
	fmt.Fprintf(w, "  > ")

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "project"
	}
	switch strings.TrimSpace(line) {
	case "1", "":
		return "project"
	case "2":
		return "user"
	default:
		return ""
	}
}

// executeSetup is the testable core of the setup command.
func executeSetup(in io.Reader, w io.Writer, opts setupOptions) {
	r := bufio.NewReader(in)

	detected := detectAgents()
	if len(detected) == 0 {
		fmt.Fprintln(w, "No supported AI agents detected.")
		return
	}

	fmt.Fprintln(w, "Detected AI agents:")
	for _, d := range detected {
		if d.configured {
			fmt.Fprintf(w, "  * %s (already configured)\n", d.def.displayName)
		} else {
			fmt.Fprintf(w, "  * %s\n", d.def.displayName)
		}
	}
	fmt.Fprintln(w)

	if !opts.auto && !promptYesNo(r, w, "Configure agents? [Y/n]") {
		return
	}

	for _, d := range detected {
		if d.configured {
			fmt.Fprintf(w, "\n%s: already configured, skipping\n", d.def.displayName)
			continue
		}
		configureAgent(r, w, d, opts)
	}
}

func configureAgent(r *bufio.Reader, w io.Writer, d detectedAgent, opts setupOptions) {
	switch d.def.method {
	case "cli":
		scope := "project"
		if !opts.auto && d.def.needsScope {
			if scope = promptScope(r, w, d.def.displayName); scope == "" {
				fmt.Fprintln(w, "  skipped")
				return
			}
		}
		if err := configureCLIAgent(d.def, scope, opts.registryPath); err != nil {
			fmt.Fprintf(w, "  ! %s: failed: %v\n", d.def.displayName, err)
			return
		}
		fmt.Fprintf(w, "  + %s configured (scope: %s)\n", d.def.displayName, scope)

	case "file":
		if !opts.auto && !promptYesNo(r, w, fmt.Sprintf("\n%s: add to %s? [Y/n]", d.def.displayName, d.resolvedPath)) {
			fmt.Fprintln(w, "  skipped")
			return
		}
		if err := configureFileAgent(d.def, d.resolvedPath, opts.registryPath); err != nil {
			fmt.Fprintf(w, "  ! %s: failed: %v\n", d.def.displayName, err)
			return
		}
		fmt.Fprintf(w, "  + %s configured (%s)\n", d.def.displayName, d.resolvedPath)
	}
}
