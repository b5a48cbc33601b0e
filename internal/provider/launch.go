package provider

type launch struct {
	cli     string   // executable probed for availability
	command []string // command line typed into the console
	hint    string
}

var launches = map[ID]launch{
	ClaudeCode: {
		cli:     "claude",
		command: []string{"claude"},
		hint:    "Install Claude Code for Windows: npm install -g @anthropic-ai/claude-code",
	},
	ClaudeCodeWSL: {
		cli:     "claude",
		command: []string{"wsl.exe", "--", "bash", "-lic", "claude"},
		hint:    "Install WSL (wsl --install), then inside WSL run: npm install -g @anthropic-ai/claude-code",
	},
	Codex: {
		cli:     "codex",
		command: []string{"codex"},
		hint:    "Install Codex: npm install -g @openai/codex",
	},
	CursorAgent: {
		cli:     "cursor-agent",
		command: []string{"wsl.exe", "--", "bash", "-lic", "cursor-agent"},
		hint:    "Install WSL (wsl --install), then inside WSL run: curl https://cursor.com/install -fsS | bash",
	},
	QwenCode: {
		cli:     "qwen",
		command: []string{"qwen"},
		hint:    "Install Qwen Code: npm install -g @qwen-code/qwen-code",
	},
	OpenCode: {
		cli:     "opencode",
		command: []string{"opencode"},
		hint:    "Install OpenCode: npm install -g opencode-ai",
	},
}

// CLI returns the executable name looked up when probing availability.
func (id ID) CLI() string { return launches[id].cli }

// Command returns the command line that starts the provider in a console.
// The returned slice is a copy.
func (id ID) Command() []string {
	return append([]string(nil), launches[id].command...)
}

// InstallHint is the one-line installation instruction shown when the
// provider is selected but cannot be launched.
func (id ID) InstallHint() string { return launches[id].hint }
