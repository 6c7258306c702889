package engine

import (
	"context"
	"html/template"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-render/types"
)

const HTMLName = "html"

// HTML executes elements as html/template sources. Templates get a "t"
// function bound to the active translation domain and "raw" for trusted
// markup such as dynamically loaded fragments.
type HTML struct{}

var _ types.TemplatingEngine = (*HTML)(nil)

func NewHTML() *HTML {
	return &HTML{}
}

func (h *HTML) Name() string {
	return HTMLName
}

func (h *HTML) Execute(_ context.Context, source, content string, data map[string]interface{}, translate types.TranslateFunc) (string, error) {
	if translate == nil {
		translate = func(msgid string, _ ...interface{}) string { return msgid }
	}

	tmpl, err := template.New(source).Funcs(template.FuncMap{
		"t":   translate,
		"raw": func(s string) template.HTML { return template.HTML(s) },
	}).Parse(content)
	if err != nil {
		return "", h.wrap(source, err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", h.wrap(source, err)
	}

	return b.String(), nil
}

func (h *HTML) wrap(source string, err error) error {
	return &types.TemplatingEngineError{
		Engine: HTMLName,
		Source: source,
		Line:   errorLine(source, err),
		Err:    err,
	}
}

// errorLine extracts the line from "template: <source>:<line>:..." messages.
func errorLine(source string, err error) int {
	msg := err.Error()
	marker := "template: " + source + ":"

	i := strings.Index(msg, marker)
	if i < 0 {
		return 0
	}

	rest := msg[i+len(marker):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}

	line, convErr := strconv.Atoi(rest[:end])
	if convErr != nil {
		return 0
	}
	return line
}
