package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"imagyn/app"
	"imagyn/domain/core"
	"imagyn/domain/generation"
)

const promptPreviewLen = 80

// Generation renders the summary shown after a successful generation.
func Generation(rec *generation.Record) string {
	var b strings.Builder
	b.WriteString("Image generated successfully!\n\n")
	fmt.Fprintf(&b, "**Image ID:** %s\n", rec.ID)
	fmt.Fprintf(&b, "**Prompt:** %s\n", rec.Metadata.Prompt)
	fmt.Fprintf(&b, "**Seed:** %d\n", rec.Metadata.Seed)
	fmt.Fprintf(&b, "**Generation Time:** %.2fs\n", rec.Metadata.GenerationTimeSeconds)
	fmt.Fprintf(&b, "**Dimensions:** %dx%d\n", rec.Metadata.Width, rec.Metadata.Height)
	fmt.Fprintf(&b, "**LoRAs Used:** %s\n", joinOrNone(rec.Metadata.AdaptersUsed))
	fmt.Fprintf(&b, "**File Path:** %s\n", rec.AbsolutePath)
	return b.String()
}

// Details renders every field of one stored record.
func Details(rec *generation.Record) string {
	m := rec.Metadata
	var b strings.Builder
	b.WriteString("**Image Details**\n\n")
	fmt.Fprintf(&b, "- **ID:** %s\n", rec.ID)
	fmt.Fprintf(&b, "- **Created:** %s\n", rec.CreatedAt)
	fmt.Fprintf(&b, "- **Prompt:** %s\n", m.Prompt)
	fmt.Fprintf(&b, "- **Negative Prompt:** %s\n", orNone(m.NegativePrompt))
	fmt.Fprintf(&b, "- **Seed:** %d\n", m.Seed)
	fmt.Fprintf(&b, "- **Dimensions:** %dx%d\n", m.Width, m.Height)
	fmt.Fprintf(&b, "- **Steps:** %d\n", m.Steps)
	fmt.Fprintf(&b, "- **CFG:** %g\n", m.CFG)
	fmt.Fprintf(&b, "- **Pipeline:** %s\n", orNone(m.PipelineName))
	fmt.Fprintf(&b, "- **Generation Time:** %.2fs\n", m.GenerationTimeSeconds)
	fmt.Fprintf(&b, "- **LoRAs Used:** %s\n", joinOrNone(m.AdaptersUsed))
	fmt.Fprintf(&b, "- **File Path:** %s\n", rec.AbsolutePath)
	return b.String()
}

// History renders a numbered list of recent records.
func History(records []generation.Record) string {
	if len(records) == 0 {
		return "No images found in generation history\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Recent Generations** (Last %d images):\n\n", len(records))
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. **%s...** - %s\n", i+1, core.ID(rec.ID).Short(8), rec.CreatedAt)
		fmt.Fprintf(&b, "   Prompt: %s\n", preview(rec.Metadata.Prompt, promptPreviewLen))
		fmt.Fprintf(&b, "   Seed: %d, Time: %.2fs\n\n", rec.Metadata.Seed, rec.Metadata.GenerationTimeSeconds)
	}
	return b.String()
}

// Adapters renders the adapter catalog.
func Adapters(adapters []generation.AdapterDescriptor) string {
	if len(adapters) == 0 {
		return "No LoRA adapters are installed on the backend\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Available LoRAs** (%d):\n\n", len(adapters))
	for _, a := range adapters {
		fmt.Fprintf(&b, "- **%s** (`%s`) %s\n", a.DisplayName, a.CatalogName, a.Description)
	}
	return b.String()
}

// Status renders the server status as markdown.
func Status(st *app.ServerStatus) string {
	backend := "disconnected"
	if st.BackendConnected {
		backend = "connected"
	}

	var b strings.Builder
	b.WriteString("# Imagyn Server Status\n\n")
	b.WriteString("## Backend\n\n")
	b.WriteString("| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| URL | %s |\n", st.BackendURL)
	fmt.Fprintf(&b, "| Status | %s |\n", backend)
	b.WriteString("\n## Configuration\n\n")
	b.WriteString("| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Workflow | %s (%s, %d nodes) |\n", st.WorkflowFile, st.PipelineName, st.PipelineNodes)
	fmt.Fprintf(&b, "| LoRAs enabled | %t |\n", st.AdaptersEnabled)
	fmt.Fprintf(&b, "| Max concurrent generations | %d |\n", st.MaxConcurrent)
	fmt.Fprintf(&b, "| In flight | %d |\n", st.InFlight)
	fmt.Fprintf(&b, "| Generation timeout | %s |\n", st.GenerationTimeout)
	fmt.Fprintf(&b, "| HTTP timeout | %s |\n", st.HTTPTimeout)
	fmt.Fprintf(&b, "| Websocket timeout | %s |\n", st.WebsocketTimeout)
	b.WriteString("\n## Storage\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Output folder | %s |\n", st.Storage.RootPath)
	fmt.Fprintf(&b, "| Images | %d |\n", st.Storage.TotalCount)
	fmt.Fprintf(&b, "| Size | %.2f MB |\n", st.Storage.TotalMB)
	fmt.Fprintf(&b, "| Mean generation time | %.2fs |\n", st.Storage.MeanGenerationSeconds)
	fmt.Fprintf(&b, "| Median generation time | %.2fs |\n", st.Storage.MedianGenerationSeconds)
	return b.String()
}

// ToHTML renders markdown produced by this package as an HTML fragment.
func ToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.ToHTML([]byte(md), p, renderer)
}

// preview cuts s to at most n runes.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}
