package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/manifold/pkg/config"
	"github.com/aretw0/manifold/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of the configured pipeline.
// It applies semantic styling:
// - stdin master: ((Circle))
// - spawned master: [[Subroutine]]
// - stage: [Rectangle]
// Stages that are not kept alive are reached by a dotted edge.
func GenerateMermaid(cfg *config.Config) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	if cfg.Input.Stdin {
		sb.WriteString("    master((\"stdin\"))\n")
	} else {
		fmt.Fprintf(&sb, "    master[[\"%s\"]]\n", escape(commandLine(cfg.Input.Bin, cfg.Input.Args)))
	}
	for i, stage := range cfg.Stages() {
		writeStage(&sb, "master", fmt.Sprintf("s%d", i), stage)
	}
	return sb.String()
}

func writeStage(sb *strings.Builder, parent, id string, stage config.Stage) {
	fmt.Fprintf(sb, "    %s[\"%s\"]\n", id, escape(stage.Label()))
	arrow := "-->"
	if !stage.KeepsAlive() {
		arrow = "-. once .->"
	}
	fmt.Fprintf(sb, "    %s %s %s\n", parent, arrow, id)
	for i, next := range stage.Next() {
		writeStage(sb, id, fmt.Sprintf("%s_%d", id, i), next)
	}
}

// GenerateTreeMermaid produces a Mermaid flowchart of a running tree, keyed by
// node id, with respawned and stopping nodes highlighted.
func GenerateTreeMermaid(tree domain.TreeInfo) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var restarted, stopping []string
	var walk func(t domain.TreeInfo)
	walk = func(t domain.TreeInfo) {
		id := "n" + t.ID.String()
		label := treeLabel(t.NodeInfo)
		if t.IsMaster() {
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", id, escape(label))
		} else {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", id, escape(label))
			fmt.Fprintf(&sb, "    n%s --> %s\n", t.Parent, id)
		}
		if t.Restarts > 0 {
			restarted = append(restarted, id)
		}
		if t.State == domain.NodeStateStopping || t.State == domain.NodeStateExited {
			stopping = append(stopping, id)
		}
		for _, s := range t.Stages {
			walk(s)
		}
	}
	walk(tree)

	if len(restarted) > 0 || len(stopping) > 0 {
		sb.WriteString("\n    %% State Styles\n")
		sb.WriteString("    classDef restarted fill:#fff3e0,stroke:#e65100,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef stopping fill:#eceff1,stroke:#607d8b,stroke-dasharray:4,color:#000;\n")
		for _, id := range restarted {
			fmt.Fprintf(&sb, "    class %s restarted;\n", id)
		}
		for _, id := range stopping {
			fmt.Fprintf(&sb, "    class %s stopping;\n", id)
		}
	}
	return sb.String()
}

func treeLabel(n domain.NodeInfo) string {
	label := n.Name
	switch {
	case label != "":
	case n.Origin == domain.OriginEnclosingProgram:
		label = "stdin"
	default:
		label = commandLine(n.Command, n.Args)
	}
	if n.Restarts > 0 {
		label = fmt.Sprintf("%s <br/> restarts: %d", label, n.Restarts)
	}
	return label
}

func commandLine(bin string, args []string) string {
	return strings.TrimSpace(bin + " " + strings.Join(args, " "))
}

// escape keeps labels inside their double quotes.
func escape(label string) string {
	return strings.ReplaceAll(label, "\"", "'")
}
