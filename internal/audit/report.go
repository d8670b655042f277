package audit

import (
	"fmt"
	"path"
	"strings"
	"time"

	"docsync/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Markdown renders the consistency report written by `audit --report`.
func Markdown(r model.AuditReport, generatedAt time.Time) string {
	title := cases.Title(language.English)
	var b strings.Builder

	b.WriteString("# Configuration-Documentation Consistency Report\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", generatedAt.Format("2006-01-02 15:04:05"))

	if r.Clean() {
		b.WriteString("**STATUS: PERFECT ALIGNMENT**\n")
		b.WriteString("All configurations have corresponding documentation.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "**STATUS: %d ISSUES FOUND**\n\n", r.IssueCount())

	if n := len(r.SourcesWithoutDocs); n > 0 {
		fmt.Fprintf(&b, "## Configurations Missing Documentation (%d)\n\n", n)
		for _, m := range r.SourcesWithoutDocs {
			fmt.Fprintf(&b, "- **%s**: `%s`\n", title.String(string(m.Type)), path.Base(m.SourcePath))
			fmt.Fprintf(&b, "  - Config: `%s`\n", m.SourcePath)
			fmt.Fprintf(&b, "  - Missing Doc: `%s`\n\n", m.ExpectedDoc)
		}
	}

	if n := len(r.DocsWithoutSources); n > 0 {
		fmt.Fprintf(&b, "## Documentation Without Configurations (%d)\n\n", n)
		for _, m := range r.DocsWithoutSources {
			fmt.Fprintf(&b, "- **%s**: `%s`\n", title.String(string(m.Type)), path.Base(m.DocPath))
			fmt.Fprintf(&b, "  - Doc: `%s`\n", m.DocPath)
			fmt.Fprintf(&b, "  - Missing Config: `%s`\n\n", m.ExpectedSource)
		}
	}

	if n := len(r.Conflicts); n > 0 {
		fmt.Fprintf(&b, "## Conflicting Sources (%d)\n\n", n)
		for _, c := range r.Conflicts {
			fmt.Fprintf(&b, "- **%s** `%s`\n", c.Kind, c.Name)
			for _, s := range c.Sources {
				fmt.Fprintf(&b, "  - Source: `%s`\n", s)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
