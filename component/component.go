package component

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"

	"github.com/saiset-co/sai-render/types"
)

const elementExt = ".html"

// Base carries the routes and injectors shared by every component kind.
type Base struct {
	name      string
	routes    []*types.Route
	injectors []types.Injector
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Routes() []*types.Route {
	routes := make([]*types.Route, len(b.routes))
	copy(routes, b.routes)
	return routes
}

func (b *Base) AddRoute(route *types.Route) {
	b.routes = append(b.routes, route)
}

func (b *Base) AddInjector(injector types.Injector) {
	b.injectors = append(b.injectors, injector)
}

func (b *Base) Inject(ctx context.Context, req *types.Request, stage types.InjectStage) error {
	for _, injector := range b.injectors {
		if err := injector.Inject(ctx, req, stage); err != nil {
			return err
		}
	}
	return nil
}

// InjectorFunc adapts a function to types.Injector.
type InjectorFunc func(ctx context.Context, req *types.Request, stage types.InjectStage) error

func (f InjectorFunc) Inject(ctx context.Context, req *types.Request, stage types.InjectStage) error {
	return f(ctx, req, stage)
}

// Directory serves element name from <root>/<name>.html, preferring
// <root>/<subtemplate>/<name>.html when the render selects a subtemplate.
type Directory struct {
	Base
	fsys  fs.FS
	root  string
	osDir string
}

var _ types.Component = (*Directory)(nil)
var _ types.RouteProvider = (*Directory)(nil)
var _ types.Injector = (*Directory)(nil)

func NewDirectory(name string, fsys fs.FS, root string) *Directory {
	if root == "" {
		root = "."
	}
	return &Directory{
		Base: Base{name: name},
		fsys: fsys,
		root: root,
	}
}

// NewDirectoryFromPath serves templates from dir on the local filesystem.
func NewDirectoryFromPath(name, dir string) *Directory {
	d := NewDirectory(name, os.DirFS(dir), ".")
	d.osDir = dir
	return d
}

// OSDir is the local directory backing the component, empty for other fs.FS.
func (d *Directory) OSDir() string {
	return d.osDir
}

func (d *Directory) Element(ctx context.Context, name string) (string, bool, error) {
	if subtemplate := SubtemplateFromContext(ctx); subtemplate != "" {
		content, ok, err := d.read(path.Join(d.root, subtemplate, name+elementExt))
		if err != nil || ok {
			return content, ok, err
		}
	}

	return d.read(path.Join(d.root, name+elementExt))
}

func (d *Directory) read(file string) (string, bool, error) {
	if !fs.ValidPath(file) {
		return "", false, nil
	}

	data, err := fs.ReadFile(d.fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, types.WrapError(err, "failed to read template "+file)
	}

	return string(data), true, nil
}

// Static serves elements from an in-memory map.
type Static struct {
	Base
	elements map[string]string
}

var _ types.Component = (*Static)(nil)
var _ types.RouteProvider = (*Static)(nil)
var _ types.Injector = (*Static)(nil)

func NewStatic(name string, elements map[string]string) *Static {
	copied := make(map[string]string, len(elements))
	for k, v := range elements {
		copied[k] = v
	}
	return &Static{
		Base:     Base{name: name},
		elements: copied,
	}
}

func (s *Static) Element(_ context.Context, name string) (string, bool, error) {
	content, ok := s.elements[name]
	return content, ok, nil
}
