// Package report renders a finished run.
//
// Writers share the Writer interface and can be combined with MultiWriter:
//   - JSONWriter: the traverse_summary.json document
//   - MarkdownWriter: traverse_report.md with a mermaid pie chart
//   - TextWriter: the summary printed to the terminal
//
// DiffRuns compares the visits of two stored runs for the history command.
package report
