package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imagyn/domain/core"
	"imagyn/domain/generation"
	"imagyn/internal/api"
	"imagyn/internal/config"
	"imagyn/internal/container"
	"imagyn/internal/report"
)

const shutdownGrace = 15 * time.Second

// cli holds the state shared by every subcommand.
type cli struct {
	envFile   string
	jsonOut   bool
	container *container.Container
}

func main() {
	app := &cli{}

	rootCmd := &cobra.Command{
		Use:           "imagyn",
		Short:         "Imagyn CLI for generating and managing images on a ComfyUI backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.container != nil {
				return app.container.Shutdown(cmd.Context())
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOut, "json", false, "Print machine-readable JSON instead of markdown")

	rootCmd.AddCommand(
		app.newGenerateCmd(),
		app.newEditCmd(),
		app.newHistoryCmd(),
		app.newShowCmd(),
		app.newDeleteCmd(),
		app.newAdaptersCmd(),
		app.newStatusCmd(),
		app.newCleanupCmd(),
		app.newServeCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *cli) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.container, err = container.New(cfg)
	return err
}

func (a *cli) print(cmd *cobra.Command, value any, markdown string) error {
	if a.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), markdown)
	return err
}

func (a *cli) newGenerateCmd() *cobra.Command {
	var req generation.Request
	var seed uint32

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate an image from a text prompt",
		Long: `Generate an image by patching the configured workflow and running it on the backend.

Example: imagyn generate "a lighthouse at dusk" --seed 42 --width 832 --height 1216 --lora anime`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = args[0]
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			rec, err := a.container.Service.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := rec.WithoutInline()
			return a.print(cmd, out, report.Generation(&out))
		},
	}

	cmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().Uint32Var(&seed, "seed", 0, "Sampler seed (random when omitted)")
	cmd.Flags().IntVar(&req.Width, "width", generation.DefaultWidth, "Image width in pixels")
	cmd.Flags().IntVar(&req.Height, "height", generation.DefaultHeight, "Image height in pixels")
	cmd.Flags().StringSliceVar(&req.Adapters, "lora", nil, "LoRA adapter to apply (first resolvable one is used)")

	return cmd
}

func (a *cli) newEditCmd() *cobra.Command {
	var req generation.EditRequest

	cmd := &cobra.Command{
		Use:   "edit [image-id] [new-prompt]",
		Short: "Re-generate a stored image with a new prompt at its original size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseArtifactID(args[0])
			if err != nil {
				return err
			}
			req.ImageID = id
			req.Prompt = args[1]

			rec, err := a.container.Service.Edit(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := rec.WithoutInline()
			return a.print(cmd, out, report.Generation(&out))
		},
	}

	cmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().StringSliceVar(&req.Adapters, "lora", nil, "LoRA adapter to apply")
	cmd.Flags().Float64Var(&req.EditStrength, "strength", generation.DefaultEditStrength, "Edit strength in [0.1, 1.0]")

	return cmd
}

func (a *cli) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.container.Service.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return a.print(cmd, records, report.History(records))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records to show (1-50)")
	return cmd
}

func (a *cli) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [image-id]",
		Short: "Show the stored metadata of one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseArtifactID(args[0])
			if err != nil {
				return err
			}
			rec, err := a.container.Service.Lookup(cmd.Context(), id, false)
			if err != nil {
				return err
			}
			return a.print(cmd, rec, report.Details(rec))
		},
	}
}

func (a *cli) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [image-id]",
		Short: "Delete a stored image and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseArtifactID(args[0])
			if err != nil {
				return err
			}
			if err := a.container.Service.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return a.print(cmd, map[string]any{"deleted": id}, fmt.Sprintf("Deleted image %s\n", id))
		},
	}
}

func (a *cli) newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List LoRA adapters installed on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.container.Service.ListAdapters(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, list, report.Adapters(list))
		},
	}
}

func (a *cli) newStatusCmd() *cobra.Command {
	var html bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability, configuration and storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.container.Service.Status(cmd.Context())
			if err != nil {
				return err
			}
			md := report.Status(st)
			if html {
				md = string(report.ToHTML(md))
			}
			return a.print(cmd, st, md)
		},
	}

	cmd.Flags().BoolVar(&html, "html", false, "Render the status report as HTML")
	return cmd
}

func (a *cli) newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Drop index entries whose image files no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := a.container.Service.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(cmd, map[string]int{"removed": removed}, fmt.Sprintf("Removed %d stale entries\n", removed))
		},
	}
}

func (a *cli) newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = a.container.Config.Server.Port
			}
			gin.SetMode(a.container.Config.Server.GinMode)
			logger := a.container.Logger

			server := api.NewServer(a.container.Service, logger.Named("api"))
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start(":" + port) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				logger.Info("Shutting down", zap.String("port", port))
				ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return server.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (defaults to PORT)")
	return cmd
}
