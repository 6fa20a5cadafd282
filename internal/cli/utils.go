// Package cli formats templates, document records and validation reports for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
	"github.com/hectronix2005/Valkiria-ECM-sub002/pkg/utils"
)

// OutputFormat selects human-readable or JSON output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; anything else is an error.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteTemplate writes one template.
func WriteTemplate(w io.Writer, tmpl *models.Template, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, tmpl)
	}
	fmt.Fprintf(w, "Template %s (%s)\n", tmpl.ID, tmpl.Status)
	fmt.Fprintf(w, "Name: %s\n", tmpl.Name)
	if tmpl.SourcePath != "" {
		fmt.Fprintf(w, "Source: %s\n", tmpl.SourcePath)
	}
	fmt.Fprintln(w, "Placeholders:")
	for _, name := range tmpl.Placeholders {
		path := tmpl.FieldMap[name]
		if path == "" {
			path = "(unmapped)"
		}
		fmt.Fprintf(w, "  {{%s}} -> %s\n", name, path)
	}
	if len(tmpl.Signatories) > 0 {
		order := "parallel"
		if tmpl.SequentialSigning {
			order = "sequential"
		}
		fmt.Fprintf(w, "Signatories (%s):\n", order)
		for _, sp := range tmpl.Signatories {
			fmt.Fprintf(w, "  %d. %s%s\n", sp.Position, sp.Label, requiredMark(sp.Required))
		}
	}
	return nil
}

// WriteTemplates writes a template listing.
func WriteTemplates(w io.Writer, list []*models.Template, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, list)
	}
	for _, tmpl := range list {
		fmt.Fprintf(w, "%-26s %-9s %-40s %d placeholders\n",
			tmpl.ID, tmpl.Status, utils.Truncate(tmpl.Name, 40), len(tmpl.Placeholders))
	}
	return nil
}

func requiredMark(required bool) string {
	if required {
		return " *"
	}
	return ""
}

// WriteDocument writes one document record with its signature roster.
func WriteDocument(w io.Writer, doc *models.DocumentRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Document %s\n", doc.ID)
	fmt.Fprintf(w, "Template: %s\n", doc.TemplateID)
	fmt.Fprintf(w, "Status: %s | PDF: %s\n", doc.Status, doc.PDFStatus)
	fmt.Fprintf(w, "Source: %s\n", doc.SourceRef)
	if doc.DraftRef != "" {
		fmt.Fprintf(w, "Draft: %s\n", doc.DraftRef)
	}
	if doc.FinalRef != "" {
		fmt.Fprintf(w, "Final: %s\n", doc.FinalRef)
	}
	if doc.StampError != "" {
		fmt.Fprintf(w, "Stamp error: %s\n", doc.StampError)
	}
	if len(doc.Slots) > 0 {
		fmt.Fprintln(w, "Signatures:")
		for _, sl := range doc.Slots {
			line := fmt.Sprintf("  [%s] %d. %s%s", slotMark(sl), sl.Position, sl.Label, requiredMark(sl.Required))
			if sl.Signed() && sl.SignedAt != nil {
				line += fmt.Sprintf(" by %s at %s", sl.SignerName, sl.SignedAt.Format(time.RFC3339))
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, sub := range doc.Substitutions {
		if !sub.Found {
			fmt.Fprintf(w, "Unresolved: %s (%s)\n", sub.Pattern, sub.Part)
		}
	}
	fmt.Fprintln(w, rule)
	return nil
}

func slotMark(sl models.SignatureSlot) string {
	if sl.Signed() {
		return "x"
	}
	return " "
}

// WriteReport writes a validation report grouped by source.
func WriteReport(w io.Writer, report variables.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"ok": report.OK(), "missing": report.BySource()})
	}
	if report.OK() {
		fmt.Fprintln(w, "All placeholders resolved.")
		return nil
	}
	groups := report.BySource()
	fmt.Fprintf(w, "%d missing field(s):\n", len(report.Missing))
	for _, src := range variables.Sources {
		if len(groups[src]) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s:\n", src)
		for _, m := range groups[src] {
			if m.Path != "" {
				fmt.Fprintf(w, "    %s <- %s (%s)\n", m.Name, m.Path, m.Reason)
			} else {
				fmt.Fprintf(w, "    %s (%s)\n", m.Name, m.Reason)
			}
		}
	}
	return nil
}
