package llm

import (
	"fmt"
	"strings"

	"github.com/pedramamini/pedster/pipeline"
)

// Template is a prompt with {placeholder} substitution. {content} binds
// the record's content; any other placeholder binds a metadata key and
// substitutes empty when the key is absent.
type Template struct {
	Body   string
	System string
}

// Render substitutes placeholders from the record.
func (t Template) Render(d pipeline.Data) string {
	out := t.Body
	if out == "" {
		out = "{content}"
	}

	out = strings.ReplaceAll(out, "{content}", d.Content)
	for key, value := range d.Metadata {
		placeholder := "{" + key + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", value))
		}
	}
	return out
}
