package component

import (
	"context"
	"errors"
	"io/fs"
	"path"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-render/stack"
	"github.com/saiset-co/sai-render/types"
)

// ManifestFile declares the routes of a Directory component.
const ManifestFile = "routes.yaml"

// RouteManifest is one entry of a routes.yaml file:
//
//	- id: latest
//	  path: /news/latest/{number}
//	  aliases: {content: latest}
//	  tags: [news-feed]
//	  data: {title: Latest news}
type RouteManifest struct {
	ID      string                 `yaml:"id" validate:"required"`
	Path    string                 `yaml:"path" validate:"required,startswith=/"`
	Aliases map[string]string      `yaml:"aliases"`
	Tags    []string               `yaml:"tags"`
	Data    map[string]interface{} `yaml:"data"`
}

var manifestValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadRoutes registers the routes declared in the component's routes.yaml.
// A component without a manifest has no routes.
func (d *Directory) LoadRoutes() (int, error) {
	file := path.Join(d.root, ManifestFile)

	data, err := fs.ReadFile(d.fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, types.WrapError(err, "failed to read "+file)
	}

	var manifest []RouteManifest
	if err = yaml.Unmarshal(data, &manifest); err != nil {
		return 0, types.Errorf(types.ErrConfigParseFailed, "%s of %s: %v", ManifestFile, d.name, err)
	}

	for i := range manifest {
		if err = manifestValidator.Struct(&manifest[i]); err != nil {
			return 0, types.Errorf(types.ErrConfigValidateFailed, "%s of %s, route %d: %v", ManifestFile, d.name, i, err)
		}
	}

	for _, m := range manifest {
		d.AddRoute(&types.Route{
			ID:              m.ID,
			Path:            m.Path,
			Controller:      StaticController(m.Data, m.Tags),
			TemplateAliases: m.Aliases,
		})
	}

	return len(manifest), nil
}

// StaticController publishes data as the component output and tags the
// current frame. Route arguments are merged over data under "args".
func StaticController(data map[string]interface{}, tags []string) types.Controller {
	return func(ctx context.Context, req *types.Request) error {
		output := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			output[k] = v
		}
		output["args"] = req.Arguments()

		req.SetDataItem(types.DataCurrentComponent, output)

		if frame, ok := stack.FrameFromContext(ctx); ok {
			frame.AddTags(tags...)
		}
		return nil
	}
}
