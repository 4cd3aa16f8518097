package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderline/internal/app"
	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/server"
	"orderline/internal/workorder"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Orderline CLI",
	Long: `Orderline tracks work orders and the time spent on them.
Core concepts:
- Project: a campaign with a chat channel; owns work orders.
- Work order: one unit of work bound to a chat thread, moving
  Pending -> PushedToUser -> InProgress -> QASubmitted -> Completed
  (Cancelled exits from any open status).
- Timer: starts when work starts, folds into the total whenever the
  order leaves InProgress; 'ol wo time' shows the live clock.
- Thread binding: each chat thread maps to at most one work order, so
  commands typed in a thread land on the right order.
- Event log: diary of changes, view with 'ol log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ORDERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/orderline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(woCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectFinishCmd())
	prj.AddCommand(projectCancelCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional, generated if omitted)")
	cmd.Flags().StringVar(&opts.ChannelID, "channel", "", "chat channel id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&opts.KPI, "kpi", "", "key performance indicator")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date")
	cmd.Flags().StringVar(&opts.AccountableID, "accountable-id", "", "accountable user id")
	cmd.Flags().StringVar(&opts.DriveFolderURL, "drive-folder", "", "drive folder URL")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Channel", "Due"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ProjectID, p.Title, p.Status, p.ChannelID, p.DueDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (Active, Finished, Cancelled)")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var channel, title, deliverables, kpi, due, accountable, drive string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("channel") {
				opts.ChannelID = &channel
			}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("deliverables") {
				opts.Deliverables = &deliverables
			}
			if cmd.Flags().Changed("kpi") {
				opts.KPI = &kpi
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("accountable-id") {
				opts.AccountableID = &accountable
			}
			if cmd.Flags().Changed("drive-folder") {
				opts.DriveFolderURL = &drive
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "chat channel id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&kpi, "kpi", "", "key performance indicator")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().StringVar(&accountable, "accountable-id", "", "accountable user id")
	cmd.Flags().StringVar(&drive, "drive-folder", "", "drive folder URL")
	return cmd
}

func projectFinishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finish <project-id>",
		Short: "Finish an active project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.FinishProject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <project-id>",
		Short: "Cancel a project and its open work orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CancelProject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func woCmd() *cobra.Command {
	wo := &cobra.Command{
		Use:   "wo",
		Short: "Manage work orders",
		Long:  "Work orders flow Pending -> PushedToUser -> InProgress -> QASubmitted -> Completed; cancel exits any open status. The timer runs only while InProgress.",
	}
	wo.AddCommand(woCreateCmd())
	wo.AddCommand(woListCmd())
	wo.AddCommand(woShowCmd())
	wo.AddCommand(woUpdateCmd())
	wo.AddCommand(woPushCmd())
	wo.AddCommand(woEventCmd("start", domain.EventStart, "Start working (assignee only)"))
	wo.AddCommand(woEventCmd("pause", domain.EventPause, "Pause work, folding elapsed time into the total"))
	wo.AddCommand(woEventCmd("submit", domain.EventSubmitQA, "Submit for QA"))
	wo.AddCommand(woEventCmd("approve", domain.EventApprove, "Approve submitted work"))
	wo.AddCommand(woEventCmd("reject", domain.EventReject, "Reject submitted work, restarting the timer"))
	wo.AddCommand(woEventCmd("cancel", domain.EventCancel, "Cancel the work order"))
	wo.AddCommand(woTimeCmd())
	return wo
}

func woCreateCmd() *cobra.Command {
	var opts engine.WorkOrderCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work order",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorkOrder(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "work order id (optional, generated if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.ThreadID, "thread", "", "chat thread id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&opts.PushedToUserID, "assignee-id", "", "pre-assigned user id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("thread")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func woListCmd() *cobra.Command {
	var f engine.WorkOrderFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorkOrders(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Clock"})
				for _, w := range items {
					tw.AppendRow(table.Row{
						w.WorkOrderID, w.Title, w.Status, w.PushedToUserID,
						workorder.FormatClock(workorder.LiveTotal(w, now)),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().BoolVar(&f.InProgress, "in-progress", false, "only orders being worked on")
	return cmd
}

func woShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <work-order-id>",
		Short: "Show a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func woUpdateCmd() *cobra.Command {
	var title, deliverables, assignee string
	cmd := &cobra.Command{
		Use:   "update <work-order-id>",
		Short: "Update a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.WorkOrderUpdateOptions{ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("deliverables") {
				opts.Deliverables = &deliverables
			}
			if cmd.Flags().Changed("assignee-id") {
				opts.PushedToUserID = &assignee
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.UpdateWorkOrder(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&deliverables, "deliverables", "", "deliverables")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "reassign before work starts")
	return cmd
}

func woPushCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "push <work-order-id>",
		Short: "Push a work order to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := assignee
			if to == "" {
				to = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.ApplyEvent(ctx, args[0], domain.EventPush, to)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "assignee user id (defaults to --actor-id)")
	return cmd
}

func woEventCmd(use string, ev domain.Event, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <work-order-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.ApplyEvent(ctx, args[0], ev, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func woTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "time <work-order-id>",
		Short: "Show the time report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.WorkOrderTime(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("%s  %s  running=%t  %s\n", report.WorkOrderID, report.Status, report.Running, report.Clock)
				return nil
			})
		},
	}
}

func threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <thread-id>",
		Short: "Resolve a chat thread to its work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWorkOrderByThread(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: creations, transitions, and project changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Events.After(ctx, "", 0)
				if err != nil {
					return err
				}
				if evtType != "" {
					filtered := events[:0]
					for _, evt := range events {
						if evt.Type == evtType {
							filtered = append(filtered, evt)
						}
					}
					events = filtered
				}
				if n > 0 && len(events) > n {
					events = events[len(events)-n:]
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is orderline.yml in the workspace: store backend, engine knobs (lock wait, conflict attempts, retry backoff), server address, auth, webhooks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default orderline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
				addr = a.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        a.Config.Auth.JWTSecret,
				AllowActorHeader: a.Config.Auth.AllowActorHeader,
				Tokens:           a.Config.Auth.Tokens,
				Log:              a.Log,
			}
			if secret := os.Getenv("ORDERLINE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && len(authCfg.Tokens) == 0 && !authCfg.AllowActorHeader {
				return fmt.Errorf("no way to authenticate: set auth.jwt_secret (or ORDERLINE_JWT_SECRET), auth.tokens, or auth.allow_actor_header")
			}
			handler, err := server.New(cmd.Context(), server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Log:      a.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Orderline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func newApp() (*app.App, error) {
	return app.New(app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigFile: viper.GetString("config"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
