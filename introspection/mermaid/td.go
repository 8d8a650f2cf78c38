package mermaid

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// NodeType represents the type of a node in the graph.
type NodeType int

const (
	// NodeConfig represents a configuration key node.
	NodeConfig NodeType = iota
	// NodeInitializer represents an initializer action node.
	NodeInitializer
	// NodeResource represents a resource node.
	NodeResource
	// NodeApp represents the app root node.
	NodeApp
)

// Node represents a node in the Mermaid graph.
type Node struct {
	ID    string
	Label string
	Type  NodeType
	Style Style
	Class string
}

// Edge represents a directed edge in the Mermaid graph.
// It connects two nodes by their IDs.
type Edge struct {
	From  string
	To    string
	Arrow string // Optional arrow style (e.g., "---|>", "---o>")
}

// Graph represents a Mermaid graph with nodes and edges.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Style represents the style of a node in the graph.
type Style struct {
	Fill        string
	Stroke      string
	StrokeWidth string
	// Color applies to text color.
	Color      string
	FontWeight string
	FontSize   string
	IsHtml     bool
}

// ToCSS renders the style as a Mermaid style list, or as inline CSS for HTML labels.
func (s Style) ToCSS() string {
	props := []struct{ name, value string }{
		{"fill", s.Fill},
		{"stroke", s.Stroke},
		{"stroke-width", s.StrokeWidth},
		{"color", s.Color},
		{"font-weight", s.FontWeight},
		{"font-size", s.FontSize},
	}
	parts := make([]string, 0, len(props))
	for _, p := range props {
		if p.value != "" {
			parts = append(parts, p.name+":"+p.value)
		}
	}
	switch {
	case len(parts) == 0:
		return ""
	case s.IsHtml:
		return strings.Join(parts, ";") + ";"
	default:
		return strings.Join(parts, ",")
	}
}

// LabelBuilder helps build HTML labels for nodes in a declarative way.
type LabelBuilder struct {
	Label     string
	FontSize  int
	FontColor string
	Bold      bool
	SubLines  []string
}

// ToHTML renders the label: the main line, then each subline on its own row.
func (l LabelBuilder) ToHTML() string {
	var css []string
	if l.FontSize > 0 {
		css = append(css, fmt.Sprintf("font-size:%dpx", l.FontSize))
	}
	if l.FontColor != "" {
		css = append(css, "color:"+l.FontColor)
	}

	var b strings.Builder
	if l.Bold {
		b.WriteString("<b>")
	}
	if len(css) > 0 {
		fmt.Fprintf(&b, "<span style='%s'>%s</span>", strings.Join(css, ";"), l.Label)
	} else {
		fmt.Fprintf(&b, "<span>%s</span>", l.Label)
	}
	if l.Bold {
		b.WriteString("</b>")
	}
	for _, line := range l.SubLines {
		b.WriteString("<br/>")
		b.WriteString(line)
	}
	return b.String()
}

// Subline creates a subline for a node label with the given text and style.
func Subline(style Style, format string, args ...any) string {
	content := fmt.Sprintf(format, args...)
	css := style.ToCSS()
	if css != "" {
		return fmt.Sprintf("<span style='%s'>%s</span>", css, content)
	}
	return fmt.Sprintf("<span>%s</span>", content)
}

// RenderTD renders the graph in Mermaid TD (top-down) format.
func (g *Graph) RenderTD() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	// Render nodes layer by layer: configs, initializers, resources, app.
	for _, layer := range []NodeType{NodeConfig, NodeInitializer, NodeResource, NodeApp} {
		for _, n := range g.Nodes {
			if n.Type != layer {
				continue
			}
			fmt.Fprintf(&b, "\t%s[\"%s\"]\n", sanitizeID(n.ID), n.Label)
		}
	}

	edges := slices.Clone(g.Edges)
	slices.SortFunc(edges, func(x, y Edge) int {
		return cmp.Or(cmp.Compare(x.From, y.From), cmp.Compare(x.To, y.To))
	})
	for _, e := range edges {
		arrow := e.Arrow
		if arrow == "" {
			arrow = "-->"
		}
		fmt.Fprintf(&b, "    %s %s %s\n", sanitizeID(e.From), arrow, sanitizeID(e.To))
	}

	// Render styles
	for _, n := range g.Nodes {
		id := sanitizeID(n.ID)
		if n.Style.ToCSS() != "" {
			fmt.Fprintf(&b, "    style %s %s\n", id, n.Style.ToCSS())
		}
		if n.Class != "" {
			fmt.Fprintf(&b, "    class %s %s;\n", id, n.Class)
		}
	}

	return b.String()
}

var idReplacer = strings.NewReplacer(
	" ", "_",
	".", "_",
	"(", "_",
	")", "_",
	":", "_",
	"*", "ptr_",
	",", "_",
	"[", "_",
	"]", "_",
	"-", "_",
	"/", "__",
)

// sanitizeID turns a resource, key or type name into a Mermaid node id.
func sanitizeID(s string) string {
	return idReplacer.Replace(s)
}
