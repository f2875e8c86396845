// Package render pretty-prints schedules as stage trees with their loop
// nests.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JThr3e/heterocl/internal/ir"
	"github.com/JThr3e/heterocl/internal/schedule"
)

// Renderer renders schedules for terminal output.
type Renderer struct {
	color bool

	stageStyle  lipgloss.Style
	loopStyle   lipgloss.Style
	attrStyle   lipgloss.Style
	mutedStyle  lipgloss.Style
	outputStyle lipgloss.Style
}

// New creates a renderer. When color is false every style collapses to
// plain text.
func New(color bool) *Renderer {
	r := &Renderer{color: color}
	if color {
		r.stageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		r.loopStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		r.attrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
		r.mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		r.outputStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	} else {
		plain := lipgloss.NewStyle()
		r.stageStyle = plain
		r.loopStyle = plain
		r.attrStyle = plain
		r.mutedStyle = plain
		r.outputStyle = plain
	}
	return r
}

// Render returns the whole schedule as a stage tree.
func (r *Renderer) Render(sch *schedule.Schedule) string {
	var b strings.Builder
	for _, s := range sch.Stages {
		b.WriteString(r.RenderStage(s))
	}
	return b.String()
}

// RenderStage returns one stage with its loop nest.
func (r *Renderer) RenderStage(s *schedule.Stage) string {
	var b strings.Builder
	header := s.Name()
	switch s.Op.(type) {
	case *ir.PlaceholderOp:
		header += r.mutedStyle.Render(" (placeholder)")
	case *ir.ExternOp:
		header += r.mutedStyle.Render(" (extern)")
	}
	if s.IsOutput {
		header += r.outputStyle.Render(" [output]")
	}
	if s.Scope != "" {
		header += r.attrStyle.Render(" @" + s.Scope)
	}
	switch s.AttachType {
	case schedule.AttachInline:
		header += r.mutedStyle.Render(" inline")
	case schedule.AttachInlinedAlready:
		header += r.mutedStyle.Render(" inlined")
	case schedule.AttachScope:
		header += r.mutedStyle.Render(fmt.Sprintf(" compute_at %s/%s", s.AttachStage.Name(), s.AttachIVar))
	}
	b.WriteString(r.stageStyle.Render(header))
	b.WriteString("\n")
	for depth, iv := range s.LeafIterVars {
		b.WriteString(strings.Repeat("  ", depth+1))
		b.WriteString(r.loopStyle.Render(r.loopLine(s, iv)))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) loopLine(s *schedule.Stage, iv *ir.IterVar) string {
	line := "for " + iv.Var.Name
	if iv.Dom != nil {
		line += fmt.Sprintf(" in [%s, %s)", ir.Format(iv.Dom.Min),
			ir.Format(ir.AddExpr(iv.Dom.Min, iv.Dom.Extent)))
	}
	var notes []string
	if iv.IterType == ir.CommReduce {
		notes = append(notes, "reduce")
	}
	if attr, ok := s.IterVarAttrs[iv]; ok {
		switch attr.IterType {
		case ir.Unrolled:
			notes = append(notes, "unroll")
		case ir.Vectorized:
			notes = append(notes, "vectorize")
		case ir.Parallelized:
			notes = append(notes, "parallel")
		case ir.Pipelined:
			notes = append(notes, "pipeline")
		case ir.Tensorized:
			notes = append(notes, "tensorize")
		}
		if attr.BindThread != nil {
			notes = append(notes, "bind="+attr.BindThread.ThreadTag)
		}
		for _, p := range attr.Pragmas {
			if imm, ok := p.(*ir.StringImm); ok {
				notes = append(notes, "pragma:"+imm.Value)
			}
		}
	}
	if len(notes) > 0 {
		line += " " + r.attrStyle.Render("["+strings.Join(notes, ", ")+"]")
	}
	return line
}
