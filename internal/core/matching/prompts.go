package matching

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/core/common"
)

const defaultSinglePrompt = `You are a compliance control mapping assistant.
Decide which TARGET control is equivalent to the SOURCE control.

Rules:
- Only pick a control that is truly equivalent or highly similar in intent.
- If no target control is a good match, answer with index -1.
- Provide a confidence score between 0 and 1.
- Output ONLY a JSON object, no other text.

<SOURCE>
{{.Source}}
</SOURCE>

<TARGETS>
{{range $i, $c := .Candidates}}[{{$i}}] {{$c}}
{{end}}</TARGETS>

Output example:
{"index": 3, "confidence": 0.92}
`

const defaultBatchPrompt = `You are a compliance control mapping assistant.
For every SOURCE control decide which TARGET control is equivalent.

Rules:
- Only pick a control that is truly equivalent or highly similar in intent.
- Omit a source, or use index -1, when it has no good match.
- Provide a confidence score between 0 and 1.
- Output ONLY a JSON object, no other text.

<SOURCES>
{{range $i, $s := .Sources}}[{{$i}}] {{$s}}
{{end}}</SOURCES>

<TARGETS>
{{range $i, $c := .Candidates}}[{{$i}}] {{$c}}
{{end}}</TARGETS>

Output example:
{"matches": [{"source": 0, "index": 3, "confidence": 0.92}]}
`

type promptData struct {
	Source     string
	Sources    []string
	Candidates []string
}

type prompts struct {
	single *template.Template
	batch  *template.Template
}

func newPrompts(cfg config.MatchPrompts) (prompts, error) {
	single := cfg.Single
	if strings.TrimSpace(single) == "" {
		single = defaultSinglePrompt
	}
	batch := cfg.Batch
	if strings.TrimSpace(batch) == "" {
		batch = defaultBatchPrompt
	}
	st, err := template.New("single").Parse(single)
	if err != nil {
		return prompts{}, fmt.Errorf("parse single prompt: %w", err)
	}
	bt, err := template.New("batch").Parse(batch)
	if err != nil {
		return prompts{}, fmt.Errorf("parse batch prompt: %w", err)
	}
	return prompts{single: st, batch: bt}, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}

func prepare(texts []string, maxChars int) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = common.Truncate(common.OneLine(t), maxChars)
	}
	return out
}
