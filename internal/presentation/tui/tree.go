package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/manifold/pkg/config"
	"github.com/aretw0/manifold/pkg/domain"
	"github.com/muesli/termenv"
)

// Palette
const (
	colorMaster  = "#818cf8"
	colorStage   = "#2dd4bf"
	colorOnce    = "#fbbf24"
	colorWarn    = "#fb7185"
	colorMuted   = "#94a3b8"
	branchMiddle = "├── "
	branchLast   = "└── "
	indentMiddle = "│   "
	indentLast   = "    "
)

// TreePrinter renders pipelines and live trees as indented, colored text.
type TreePrinter struct {
	out *termenv.Output
}

// NewTreePrinter writes to w, picking colors for the terminal behind it.
// Pass termenv.WithProfile(termenv.Ascii) to force plain text.
func NewTreePrinter(w io.Writer, opts ...termenv.OutputOption) *TreePrinter {
	return &TreePrinter{out: termenv.NewOutput(w, opts...)}
}

// PrintConfig renders the configured pipeline.
func (p *TreePrinter) PrintConfig(cfg *config.Config) {
	master := "stdin"
	if !cfg.Input.Stdin {
		master = strings.TrimSpace(cfg.Input.Bin + " " + strings.Join(cfg.Input.Args, " "))
	}
	fmt.Fprintln(p.out, p.styled(master, colorMaster).Bold())

	stages := cfg.Stages()
	for i, s := range stages {
		p.printStage(s, "", i == len(stages)-1)
	}
}

func (p *TreePrinter) printStage(s config.Stage, prefix string, last bool) {
	branch, indent := branchMiddle, indentMiddle
	if last {
		branch, indent = branchLast, indentLast
	}

	line := p.styled(s.Label(), colorStage).String()
	if s.Name != "" {
		line += " " + p.styled("("+strings.TrimSpace(s.Bin+" "+strings.Join(s.Args, " "))+")", colorMuted).String()
	}
	if !s.KeepsAlive() {
		line += " " + p.styled("[once]", colorOnce).String()
	}
	fmt.Fprintln(p.out, prefix+branch+line)

	next := s.Next()
	for i, n := range next {
		p.printStage(n, prefix+indent, i == len(next)-1)
	}
}

// PrintTree renders a running tree with pids, states and restart counts.
func (p *TreePrinter) PrintTree(tree domain.TreeInfo) {
	fmt.Fprintln(p.out, p.nodeLine(tree.NodeInfo))
	for i, s := range tree.Stages {
		p.printNode(s, "", i == len(tree.Stages)-1)
	}
}

func (p *TreePrinter) printNode(t domain.TreeInfo, prefix string, last bool) {
	branch, indent := branchMiddle, indentMiddle
	if last {
		branch, indent = branchLast, indentLast
	}
	fmt.Fprintln(p.out, prefix+branch+p.nodeLine(t.NodeInfo))
	for i, s := range t.Stages {
		p.printNode(s, prefix+indent, i == len(t.Stages)-1)
	}
}

func (p *TreePrinter) nodeLine(n domain.NodeInfo) string {
	label := n.Name
	if label == "" {
		label = strings.TrimSpace(n.Command + " " + strings.Join(n.Args, " "))
	}
	if n.Origin == domain.OriginEnclosingProgram {
		label = "stdin"
	}

	color := colorStage
	if n.IsMaster() {
		color = colorMaster
	}
	line := p.styled(label, color).String()

	meta := fmt.Sprintf("#%s pid=%d %s", n.ID, n.PID, n.State)
	line += " " + p.styled(meta, colorMuted).String()
	if n.Restarts > 0 {
		line += " " + p.styled(fmt.Sprintf("restarts=%d", n.Restarts), colorWarn).String()
	}
	if !n.IsMaster() && !n.KeepAlive {
		line += " " + p.styled("[once]", colorOnce).String()
	}
	return line
}

func (p *TreePrinter) styled(s, color string) termenv.Style {
	return p.out.String(s).Foreground(p.out.Color(color))
}
