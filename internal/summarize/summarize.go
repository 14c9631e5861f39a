// Package summarize turns raw threat data exported as CSV into a readable
// summary and then asks for mitigations of what the summary describes.
package summarize

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/llm"
)

// DefaultMaxRows bounds how many data rows are sent to the model.
const DefaultMaxRows = 500

const (
	summarySystem = `You summarize raw cybersecurity data into a concise, human-readable summary.
Include the key details about the attack type, its impact and the affected systems.`

	mitigationSystem = `You find solutions and mitigations for cybersecurity threats.
Given a summary of a cyber attack, list the solutions and mitigations the user can apply
to tackle the weaknesses and vulnerabilities it describes.`
)

// ErrNoData is returned for a CSV without data rows.
var ErrNoData = errors.New("csv has no data rows")

// Report is the pipeline output.
type Report struct {
	Summary     string `json:"summary"`
	Mitigations string `json:"mitigations"`
	Rows        int    `json:"rows"`
	Truncated   bool   `json:"truncated"`
}

// Pipeline runs the two model calls.
type Pipeline struct {
	llm     llm.Client
	maxRows int
	logger  *zap.Logger
}

// New creates a pipeline. maxRows <= 0 selects DefaultMaxRows.
func New(client llm.Client, maxRows int, logger *zap.Logger) *Pipeline {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{llm: client, maxRows: maxRows, logger: logger.Named("summarize")}
}

// Run parses the CSV, summarizes it and asks for mitigations.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*Report, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrNoData
	}

	rows := len(records) - 1
	truncated := rows > p.maxRows
	if truncated {
		p.logger.Warn("truncating csv", zap.Int("rows", rows), zap.Int("max_rows", p.maxRows))
		records = records[:p.maxRows+1]
	}

	summary, err := p.llm.Complete(ctx, llm.Request{
		System: summarySystem,
		Prompt: "Summarize the following raw cybersecurity data:\n" + Table(records),
	})
	if err != nil {
		return nil, fmt.Errorf("summarizing: %w", err)
	}

	mitigations, err := p.llm.Complete(ctx, llm.Request{
		System: mitigationSystem,
		Prompt: "Mitigations and solutions for:\n" + summary.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("finding mitigations: %w", err)
	}

	return &Report{
		Summary:     strings.TrimSpace(summary.Text),
		Mitigations: strings.TrimSpace(mitigations.Text),
		Rows:        rows,
		Truncated:   truncated,
	}, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return records, nil
}

// Table renders records as an aligned text table with a row index column.
func Table(records [][]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	for i, rec := range records {
		idx := ""
		if i > 0 {
			idx = fmt.Sprint(i - 1)
		}
		fmt.Fprintln(w, idx+"\t"+strings.Join(rec, "\t"))
	}
	w.Flush()
	return buf.String()
}

// Markdown formats a report for terminal rendering.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("## Generated Threat Summary\n\n")
	b.WriteString(r.Summary)
	b.WriteString("\n\n## Mitigations and Solutions\n\n")
	b.WriteString(r.Mitigations)
	b.WriteString("\n")
	if r.Truncated {
		b.WriteString("\n_Only part of the input was summarized._\n")
	}
	return b.String()
}
