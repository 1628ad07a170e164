package agent

import (
	_ "embed"
	"os"
	"runtime"
	"strings"
	"text/template"
)

//go:embed prompts/system.tmpl
var systemPromptText string

var systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptText))

// promptInfo carries the host facts the system prompt embeds.
type promptInfo struct {
	Workspace string
	OS        string
	Shell     string
	Home      string
}

// BuildSystemPrompt renders the system prompt for a workspace. A non-empty
// skills summary is appended as an extra section so the model knows which
// skills it can load with get_skill.
func BuildSystemPrompt(workspace, skillsSummary string) string {
	info := promptInfo{
		Workspace: workspace,
		OS:        runtime.GOOS,
		Shell:     defaultShell(),
		Home:      homeDir(),
	}
	var sb strings.Builder
	if err := systemPromptTmpl.Execute(&sb, info); err != nil {
		panic(err)
	}
	prompt := sb.String()
	if skillsSummary != "" {
		prompt += skillsSection(skillsSummary)
	}
	return prompt
}

func skillsSection(summary string) string {
	var sb strings.Builder
	sb.WriteString("\n\n====\n\n## Available Skills\n\n")
	sb.WriteString("The following skills extend your capabilities with specialized knowledge and pre-defined workflows:\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\nWhen a task matches a skill's description, use the `get_skill` tool to load its full instructions before starting work.\n")
	return sb.String()
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
