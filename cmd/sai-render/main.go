package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/saiset-co/sai-render/config"
	"github.com/saiset-co/sai-render/service"
	"github.com/saiset-co/sai-render/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "sai-render",
		Usage: "component based page renderer with a tag indexed cache",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration",
				Value:   "config.yml",
				EnvVars: []string{"SAI_RENDER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP server",
				Action: func(c *cli.Context) error {
					svc, err := newService(c)
					if err != nil {
						return err
					}
					return svc.Start()
				},
			},
			{
				Name:      "invalidate",
				Usage:     "Drop cached templates and pages registered under the given tags",
				ArgsUsage: "--tag <tag> [--tag <tag>...]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "tag",
						Aliases:  []string{"t"},
						Usage:    "tag to invalidate",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *service.Service) error {
						ids, err := svc.Invalidate(ctx, c.StringSlice("tag"))
						if err != nil {
							return err
						}
						for _, id := range ids {
							fmt.Fprintln(c.App.Writer, id)
						}
						return nil
					})
				},
			},
			{
				Name:  "flush",
				Usage: "Drop every cached template and page",
				Action: func(c *cli.Context) error {
					return withService(c, func(ctx context.Context, svc *service.Service) error {
						return svc.InvalidateAll(ctx)
					})
				},
			},
		},
	}
}

func newService(c *cli.Context) (*service.Service, error) {
	cm, err := config.NewConfigurationManager(c.Context, c.String("config"))
	if err != nil {
		return nil, err
	}
	return service.NewService(c.Context, cm)
}

func withService(c *cli.Context, fn func(ctx context.Context, svc *service.Service) error) (err error) {
	svc, err := newService(c)
	if err != nil {
		return err
	}

	if err = svc.Open(); err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil && err == nil {
			err = types.WrapError(closeErr, "failed to close service")
		}
	}()

	return fn(c.Context, svc)
}
