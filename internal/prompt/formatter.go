// Package prompt renders the advice prompt from a template file and the
// aggregated activity data.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"example.com/runcoach/internal/domain"
)

// Placeholder names understood by Format.
const (
	ActivityDataField      = "activity_data"
	SummaryStatisticsField = "summary_statistics"
)

// Render substitutes {name} placeholders in tmpl with values[name]. Doubled
// braces produce a literal brace.
func Render(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(tmpl[i+1:], "{}")
			if end < 0 || tmpl[i+1+end] != '}' {
				return "", &domain.TemplateError{Detail: fmt.Sprintf("unbalanced '{' at offset %d", i)}
			}
			name := tmpl[i+1 : i+1+end]
			value, ok := values[name]
			if !ok {
				return "", &domain.TemplateError{Detail: fmt.Sprintf("unknown placeholder %q", name)}
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", &domain.TemplateError{Detail: fmt.Sprintf("single '}' at offset %d", i)}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Format fills the activity and summary placeholders with indented JSON.
func Format(tmpl string, normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) (string, error) {
	if normalized == nil {
		normalized = []domain.NormalizedActivity{}
	}
	if stats == nil {
		stats = []domain.SummaryStatistics{}
	}

	activityJSON, err := json.MarshalIndent(normalized, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal activities: %w", err)
	}
	statsJSON, err := json.MarshalIndent(stats, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal summary statistics: %w", err)
	}

	return Render(tmpl, map[string]string{
		ActivityDataField:      string(activityJSON),
		SummaryStatisticsField: string(statsJSON),
	})
}

// Formatter formats prompts from a template file. The file is read on every
// call so edits take effect without a restart.
type Formatter struct {
	path string
}

// NewFormatter constructs a Formatter for the template at path.
func NewFormatter(path string) *Formatter {
	return &Formatter{path: path}
}

// Format loads the template and renders it.
func (f *Formatter) Format(normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) (string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return "", &domain.TemplateError{Detail: "read " + f.path, Err: err}
	}
	return Format(string(raw), normalized, stats)
}
