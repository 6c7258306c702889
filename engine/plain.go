package engine

import (
	"context"

	"github.com/saiset-co/sai-render/types"
)

const PlainName = "plain"

// Plain emits the element unchanged.
type Plain struct{}

var _ types.TemplatingEngine = (*Plain)(nil)

func NewPlain() *Plain {
	return &Plain{}
}

func (p *Plain) Name() string {
	return PlainName
}

func (p *Plain) Execute(_ context.Context, _, content string, _ map[string]interface{}, _ types.TranslateFunc) (string, error) {
	return content, nil
}
