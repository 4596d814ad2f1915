// Package output renders engine responses for the CLI: search results,
// ranking explanations, cache stats, and backend status.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/searchrelay/searchrelay/internal/cache"
	"github.com/searchrelay/searchrelay/internal/graph"
	"github.com/searchrelay/searchrelay/internal/rank"
	"github.com/searchrelay/searchrelay/internal/relay"
)

// Renderer writes formatted engine responses to a writer.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer for the writer, with colors when the
// writer is a terminal and NO_COLOR is unset.
func NewRenderer(out io.Writer) *Renderer {
	styles := PlainStyles()
	if IsTTY(out) && !noColor() {
		styles = DefaultStyles()
	}
	return &Renderer{out: out, styles: styles}
}

// NewPlainRenderer creates a renderer that never emits color.
func NewPlainRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, styles: PlainStyles()}
}

// IsTTY checks if the writer is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// RenderResults prints a full search response.
func (r *Renderer) RenderResults(resp *relay.SearchResponse) {
	s := r.styles

	if resp.Diagnostic != "" {
		r.println(s.Warning.Render("! " + resp.Diagnostic))
	}

	if len(resp.Results) == 0 {
		r.println(s.Label.Render("No results."))
		r.renderFooter(resp)
		return
	}

	for i, res := range resp.Results {
		r.printf("%s %s %s\n",
			s.Header.Render(fmt.Sprintf("%d.", i+1)),
			s.Path.Render(location(&res)),
			s.Score.Render(fmt.Sprintf("(%.3f)", res.Score)),
		)

		if res.Signature != "" {
			r.println("   " + s.Label.Render(res.Signature))
		}
		if res.Snippet != "" {
			for _, line := range strings.Split(res.Snippet, "\n") {
				r.println("   " + line)
			}
		}
		if res.DependencyGraph != nil {
			r.renderGraph(res.DependencyGraph)
		}
		r.println("")
	}

	r.renderFooter(resp)
}

// location formats path, line range, and symbol for one result.
func location(res *relay.SearchResult) string {
	loc := res.FilePath
	if loc == "" {
		loc = res.ID
	}
	if res.StartLine > 0 {
		loc = fmt.Sprintf("%s:%d", loc, res.StartLine)
	}
	if res.FunctionName != "" {
		loc = fmt.Sprintf("%s %s()", loc, res.FunctionName)
	}
	return loc
}

func (r *Renderer) renderGraph(g *graph.Graph) {
	s := r.styles
	r.println("   " + s.Label.Render(fmt.Sprintf("dependencies (%d nodes):", len(g.Nodes))))
	for _, n := range g.Nodes {
		if n.Kind == graph.KindPrimary {
			continue
		}
		name := n.FunctionName
		if name == "" {
			name = n.ID
		}
		r.println("     " + s.Dim.Render("- ") + name + " " + s.Dim.Render(n.FilePath))
	}
	if g.Truncated {
		r.println("     " + s.Warning.Render("(truncated)"))
	}
}

func (r *Renderer) renderFooter(resp *relay.SearchResponse) {
	s := r.styles

	status := resp.CacheStatus
	if status == relay.CacheHit {
		status = s.Good.Render(status)
	} else {
		status = s.Label.Render(status)
	}

	total := resp.Timings["total"]
	r.printf("%s %d results, cache %s, %dms\n",
		s.Separator.Render("--"), len(resp.Results), status, total)
}

// RenderExplanations prints per-result ranking factor breakdowns.
func (r *Renderer) RenderExplanations(explanations []rank.Explanation) {
	s := r.styles

	if len(explanations) == 0 {
		r.println(s.Label.Render("Nothing to explain."))
		return
	}

	for i, ex := range explanations {
		r.printf("%s %s %s %s\n",
			s.Header.Render(fmt.Sprintf("%d.", i+1)),
			s.Path.Render(ex.ID),
			s.Score.Render(fmt.Sprintf("(%.3f)", ex.Score)),
			s.Dim.Render("["+ex.Mode+"]"),
		)
		r.println("   " + ex.Summary)
		for _, f := range ex.Factors {
			r.printf("   %-24s %s  %s\n",
				f.Name,
				s.Score.Render(fmt.Sprintf("%6.3f", f.Value)),
				s.Label.Render(fmt.Sprintf("x%.2f = %.3f", f.Weight, f.Contribution)),
			)
		}
		r.println("")
	}
}

// RenderCacheStats prints cache occupancy and hit counters.
func (r *Renderer) RenderCacheStats(stats cache.Stats) {
	s := r.styles

	r.println(s.Header.Render("Query cache"))
	r.printf("  entries:  %d active, %d expired (%d total, capacity %d)\n",
		stats.Active, stats.Expired, stats.Total, stats.Capacity)
	r.printf("  ttl:      %s\n", stats.TTL)
	r.printf("  hits:     %d\n", stats.Hits)
	r.printf("  misses:   %d\n", stats.Misses)
}

// RenderStatus prints backend health and capabilities.
func (r *Renderer) RenderStatus(st relay.BackendStatus) {
	s := r.styles

	r.println(s.Header.Render("Backend status"))
	r.printf("  available:    %s\n", r.yesNo(st.Available))
	r.printf("  schema:       %s\n", r.yesNo(st.SchemaValid))
	if len(st.MissingFields) > 0 {
		r.printf("  missing:      %s\n", s.Warning.Render(strings.Join(st.MissingFields, ", ")))
	}
	r.printf("  exact lookup: %s\n", r.yesNo(st.ExactLookup))
	r.printf("  diagnostics:  %s\n", r.yesNo(st.HasDiagnostics))
}

func (r *Renderer) yesNo(ok bool) string {
	if ok {
		return r.styles.Good.Render("yes")
	}
	return r.styles.Error.Render("no")
}

// Errorf prints an error line to the writer.
func (r *Renderer) Errorf(format string, args ...any) {
	r.println(r.styles.Error.Render("error: " + fmt.Sprintf(format, args...)))
}

// Write errors are ignored for console output.

func (r *Renderer) println(line string) {
	_, _ = fmt.Fprintln(r.out, line)
}

func (r *Renderer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}
