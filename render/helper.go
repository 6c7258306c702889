package render

import (
	"context"
	"html/template"

	"github.com/saiset-co/sai-render/stack"
	"github.com/saiset-co/sai-render/types"
)

// Helper is exposed to templates as .render so a template can embed other
// components while it is being displayed.
type Helper struct {
	ctx      context.Context
	pipeline *Pipeline
}

// Load renders the content element of routeID on intent. args are
// alternating key and value strings.
func (h *Helper) Load(intent, routeID string, args ...string) (template.HTML, error) {
	out, err := h.pipeline.DynamicLoadString(h.ctx, intent, routeID, pairs(args))
	if err != nil {
		return "", err
	}
	return template.HTML(out), nil
}

// Call returns the data routeID of intent produces.
func (h *Helper) Call(intent, routeID string, args ...string) (interface{}, error) {
	return h.pipeline.DynamicCall(h.ctx, intent, routeID, pairs(args), true)
}

// Message queues a UI message for the next page of the session.
func (h *Helper) Message(title, message, kind string) (string, error) {
	s, ok := stack.FromContext(h.ctx)
	if !ok {
		return "", types.ErrEmptyStack
	}
	frame, err := s.Current()
	if err != nil {
		return "", err
	}
	frame.AddMessage(types.UIMessage{Title: title, Message: message, Type: kind})
	return "", nil
}

func pairs(args []string) map[string]string {
	m := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		m[args[i]] = args[i+1]
	}
	return m
}
