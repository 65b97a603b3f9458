package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robotlab/labhub/config"
	"github.com/robotlab/labhub/routes"
	"github.com/robotlab/labhub/utils"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "labhub",
		Short:         "Lab management backend with scheduled attendance check-ins",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.AddCommand(newServeCommand(), newJobCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the attendance scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newJobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "job <materialize|notify|complete>",
		Short: "Run one scheduler job once and exit",
		Long: `Run one scheduler job once and exit.

  materialize  create today's triggers for active campaigns
  notify       send alerts for due triggers
  complete     close overdue triggers and apply penalties`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"materialize", "notify", "complete"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cfg := bootstrap()
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.JobTimeout())
			defer cancel()
			switch args[0] {
			case "materialize":
				app.Scheduler.RunMaterialize(ctx)
			case "notify":
				app.Scheduler.RunNotify(ctx)
			case "complete":
				app.Scheduler.RunComplete(ctx)
			default:
				return fmt.Errorf("unknown job %q", args[0])
			}
			return nil
		},
	}
}

func bootstrap() (*routes.App, config.AppConfig) {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase()
	return routes.NewApp(cfg, db, utils.GetRedis(), nil, utils.Logger), cfg
}

func serve() error {
	app, cfg := bootstrap()
	defer utils.Logger.Sync()

	if err := app.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	r := routes.SetupRouter(cfg, app)
	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, app.Scheduler.Stop); err != nil {
		app.Scheduler.Stop()
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
