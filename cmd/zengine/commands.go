package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zeusync/zengine/internal/config"
	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/scene"
	"github.com/zeusync/zengine/internal/engine"
	"github.com/zeusync/zengine/internal/injector"
)

type options struct {
	configPath string
	project    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "zengine",
		Short:         "Scene and asset tooling for zengine projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "engine.yaml", "engine config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVarP(&opts.project, "project", "p", "", "project directory, overrides the config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")

	root.AddCommand(
		newScanCommand(opts),
		newInspectCommand(opts),
		newNewCommand(opts),
		newRunCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// open loads the config, applies flag overrides and opens the engine.
func (o *options) open(mutate func(*config.Config)) (*engine.Engine, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.project != "" {
		cfg.Project = o.project
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e, err := injector.InitializeEngine(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Open(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newScanCommand(opts *options) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the assets found in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.open(nil)
			if err != nil {
				return err
			}
			defer e.Close()
			return printAssets(cmd.OutOrStdout(), e.Cache, typ)
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", assets.TagAsset, "only list this type tag and its subtypes")
	return cmd
}

func printAssets(w io.Writer, c *assets.Cache, tag string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPE")
	for _, loc := range c.AllOfType(tag, true) {
		t, _ := c.TypeOf(loc)
		fmt.Fprintf(tw, "%s\t%s\n", loc.Path(), t)
	}
	return tw.Flush()
}

func newInspectCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <scene>",
		Short: "Print the object tree of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(func(c *config.Config) { c.Playing = false })
			if err != nil {
				return err
			}
			defer e.Close()
			s, err := e.LoadScene(args[0])
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), e, s)
			return nil
		},
	}
}

func printTree(w io.Writer, e *engine.Engine, s *scene.Scene) {
	fmt.Fprintf(w, "%s (%d objects)\n", s.Name(), s.Len())
	var visit func(g *scene.GameObject, depth int)
	visit = func(g *scene.GameObject, depth int) {
		tags := make([]string, 0, g.ComponentCount())
		for _, c := range g.Components() {
			tags = append(tags, e.Registry.TagOf(c))
		}
		state := ""
		if !g.IsActive() {
			state = " (inactive)"
		}
		fmt.Fprintf(w, "%s%s%s [%s]\n", strings.Repeat("  ", depth+1), g.Name(), state, strings.Join(tags, ", "))
		for _, c := range g.Children() {
			visit(c, depth+1)
		}
	}
	for _, r := range s.Roots() {
		visit(r, 0)
	}
}

func newNewCommand(opts *options) *cobra.Command {
	var name string
	var camera bool
	cmd := &cobra.Command{
		Use:   "new <scene>",
		Short: "Create an empty scene file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(func(c *config.Config) { c.Playing = false })
			if err != nil {
				return err
			}
			defer e.Close()
			s, err := e.CreateScene(args[0], name)
			if err != nil {
				return err
			}
			if camera {
				s.Instantiate("Camera", nil).AddComponentByTag(e.Registry, "Camera")
				if err := e.SaveScene(s); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "scene name, defaults to the file name")
	cmd.Flags().BoolVar(&camera, "camera", true, "add a root Camera object")
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	var frames int
	cmd := &cobra.Command{
		Use:   "run <scene>",
		Short: "Load a scene in play mode and step it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(func(c *config.Config) { c.Playing = true })
			if err != nil {
				return err
			}
			defer e.Close()
			if _, err := e.LoadScene(args[0]); err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if err := e.Run(ctx, frames); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ran %d frames\n", e.Frame())
			return nil
		},
	}
	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "frames to run, 0 runs until interrupted")
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve <scene>",
		Short: "Run a scene and push scene events to editors over websocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(func(c *config.Config) { c.Watch = c.Watch || watch })
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if err := e.Serve(ctx, addr); err != nil {
				return err
			}
			if _, err := e.LoadScene(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", e.Notifier.Addr())
			return e.Run(ctx, 0)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, defaults to the config")
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "reload scenes when their files change")
	return cmd
}
