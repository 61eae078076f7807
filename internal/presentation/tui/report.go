package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/manifold/pkg/config"
	"github.com/aretw0/manifold/pkg/domain"
)

// Report describes a validated pipeline as markdown: the input, one table row
// per stage, and the shutdown and integration settings.
func Report(cfg *config.Config) string {
	var sb strings.Builder
	sb.WriteString("# Pipeline\n\n")

	if cfg.Input.Stdin {
		sb.WriteString("**Input:** standard input of `manifold`\n\n")
	} else {
		fmt.Fprintf(&sb, "**Input:** `%s`\n\n", code(cfg.Input.Bin, cfg.Input.Args))
	}

	stages := cfg.Stages()
	if len(stages) == 0 {
		sb.WriteString("_No stages: the input is only copied to standard output._\n\n")
	} else {
		sb.WriteString("| Stage | Reads from | Command | Keep alive |\n")
		sb.WriteString("|---|---|---|---|\n")
		for i, s := range stages {
			writeRow(&sb, fmt.Sprintf("%d", i+1), "input", s)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Settings\n\n")
	fmt.Fprintf(&sb, "- Drain timeout: %s\n", cfg.Shutdown.DrainTimeout)
	fmt.Fprintf(&sb, "- Kill timeout: %s\n", cfg.Shutdown.KillTimeout)
	if cfg.Dir != "" {
		fmt.Fprintf(&sb, "- Working directory: `%s`\n", cfg.Dir)
	}
	if len(cfg.Environment) > 0 {
		fmt.Fprintf(&sb, "- Extra environment: %d variables\n", len(cfg.Environment))
	}
	if cfg.MCP.Addr != "" {
		fmt.Fprintf(&sb, "- MCP endpoint: `%s`\n", cfg.MCP.Addr)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Fprintf(&sb, "- Control endpoint: `%s`\n", cfg.Metrics.Addr)
	}
	if r := cfg.Events.Redis; r != nil {
		stream := r.Stream
		if stream == "" {
			stream = domain.DefaultEventStream
		}
		fmt.Fprintf(&sb, "- Events: redis `%s`, stream `%s`\n", r.Addr, stream)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, path, parent string, s config.Stage) {
	keep := "yes"
	if !s.KeepsAlive() {
		keep = "no"
	}
	name := path
	if s.Name != "" {
		name = fmt.Sprintf("%s %s", path, s.Name)
	}
	fmt.Fprintf(sb, "| %s | %s | `%s` | %s |\n", name, parent, code(s.Bin, s.Args), keep)
	for i, n := range s.Next() {
		writeRow(sb, fmt.Sprintf("%s.%d", path, i+1), path, n)
	}
}

func code(bin string, args []string) string {
	line := strings.TrimSpace(bin + " " + strings.Join(args, " "))
	return strings.ReplaceAll(strings.ReplaceAll(line, "`", "'"), "|", "\\|")
}
