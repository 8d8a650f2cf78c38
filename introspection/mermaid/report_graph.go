package mermaid

import (
	"fmt"

	"github.com/cleitonmarx/initgate/introspection"
	"github.com/cleitonmarx/initgate/resource"
)

const (
	emojiApp         = "🚦"
	emojiConfig      = "🗝️"
	emojiService     = "📦"
	emojiProbe       = "🩺"
	emojiInitializer = "🛠️"
)

const appNodeID = "InitgateApp"

var (
	// node styles
	styleConfig      = Style{Fill: "#e8f5e9", Stroke: "#388e3c", StrokeWidth: "2px", Color: "#222222"}
	styleResource    = Style{Fill: "#e3e0fc", Stroke: "#6c47a6", StrokeWidth: "2px", Color: "#222222"}
	styleRunning     = Style{Fill: "#e0f7fa", Stroke: "#00838f", StrokeWidth: "2px", Color: "#222222"}
	styleFailed      = Style{Fill: "#fce1e1", Stroke: "#a60202", StrokeWidth: "2px", Color: "#b26a00"}
	styleApp         = Style{Fill: "#0525f5", Stroke: "black", StrokeWidth: "3px", Color: "#ffffff", FontWeight: "bold"}
	styleInitializer = Style{Fill: "#f0f0f0", Stroke: "#888888", StrokeWidth: "1px", Color: "#222222", FontWeight: "bold"}

	// sublines styles
	styleState          = Style{Color: "#b26a00", FontSize: "12px", IsHtml: true}
	styleRunnable       = Style{Color: "darkblue", FontSize: "11px", IsHtml: true}
	styleProbe          = Style{Color: "gray", FontSize: "11px", IsHtml: true}
	styleConfigProvider = Style{FontSize: "11px", Color: "green", IsHtml: true}
	styleConfigDefault  = Style{Color: "green", FontSize: "11px", IsHtml: true}
)

// GenerateIntrospectionGraph generates a Mermaid graph representation of the introspection report.
//
// Providers point at the resources waiting for them, initializers point at the
// resource they prepare and configuration keys point at the app node.
func GenerateIntrospectionGraph(r introspection.Report) string {
	g := Graph{}
	seen := make(map[string]struct{})
	add := func(n Node) {
		if _, ok := seen[n.ID]; ok {
			return
		}
		seen[n.ID] = struct{}{}
		g.Nodes = append(g.Nodes, n)
	}

	buildConfigGraph(&g, add, r.Configs)
	buildResourceGraph(&g, add, r.Resources)
	for _, e := range r.Edges {
		switch e.Kind {
		case introspection.EdgeInitializer:
			g.Edges = append(g.Edges, Edge{From: e.Provider, To: e.Consumer, Arrow: "-.->|initializes|"})
		default:
			g.Edges = append(g.Edges, Edge{From: e.Provider, To: e.Consumer})
		}
	}

	add(Node{
		ID: appNodeID,
		Label: LabelBuilder{
			Label:     fmt.Sprintf("initgate %s", emojiApp),
			FontSize:  20,
			FontColor: "white",
			Bold:      true,
		}.ToHTML(),
		Type:  NodeApp,
		Style: styleApp,
	})
	return g.RenderTD()
}

// buildConfigGraph adds one node per configuration key, linked to the app node.
func buildConfigGraph(g *Graph, add func(Node), configs []introspection.ConfigAccess) {
	linked := make(map[string]struct{})
	for _, k := range configs {
		var sublines []string
		if k.Provider != "" {
			sublines = append(sublines, Subline(styleConfigProvider, "%s %s", emojiConfig, k.Provider))
		}
		if k.UsedDefault {
			sublines = append(sublines, Subline(styleConfigDefault, "default"))
		}
		add(Node{
			ID: k.Key,
			Label: LabelBuilder{
				Label:    k.Key,
				FontSize: 16,
				Bold:     true,
				SubLines: sublines,
			}.ToHTML(),
			Type:  NodeConfig,
			Style: styleConfig,
		})
		if _, ok := linked[k.Key]; !ok {
			linked[k.Key] = struct{}{}
			g.Edges = append(g.Edges, Edge{From: k.Key, To: appNodeID, Arrow: "-.->"})
		}
	}
}

// buildResourceGraph adds resource nodes and their initializer action nodes.
func buildResourceGraph(g *Graph, add func(Node), resources []introspection.Resource) {
	for _, res := range resources {
		sublines := []string{Subline(styleState, "%s", res.State)}
		if res.Runnable != "" {
			sublines = append(sublines, Subline(styleRunnable, "%s %s", emojiService, res.Runnable))
		}
		if len(res.Probes) > 0 {
			sublines = append(sublines, Subline(styleProbe, "%s %d probes", emojiProbe, len(res.Probes)))
		}
		add(Node{
			ID: res.Name,
			Label: LabelBuilder{
				Label:    res.Name,
				FontSize: 16,
				Bold:     true,
				SubLines: sublines,
			}.ToHTML(),
			Type:  NodeResource,
			Style: resourceStyle(res.State),
		})

		for _, init := range res.Initializers {
			if init.Resource != "" {
				// rendered through the initializer edge between both resources
				continue
			}
			id := res.Name + "/" + init.Name
			add(Node{
				ID: id,
				Label: LabelBuilder{
					Label:    init.Name,
					FontSize: 15,
					Bold:     true,
					SubLines: []string{Subline(styleProbe, "%s %s", emojiInitializer, init.Probe)},
				}.ToHTML(),
				Type:  NodeInitializer,
				Style: styleInitializer,
			})
			g.Edges = append(g.Edges, Edge{From: id, To: res.Name, Arrow: "--o"})
		}
	}
}

func resourceStyle(state string) Style {
	switch state {
	case resource.StateRunning, resource.StateFinished:
		return styleRunning
	case resource.StateFailedToInitialise, resource.StateFailedToStart, resource.StateExited:
		return styleFailed
	default:
		return styleResource
	}
}
