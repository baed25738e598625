// Command eventmond runs the event monitoring pipeline: NATS ingestion,
// Postgres persistence, alert rules, and the live dashboard. It also
// offers one-shot query and export subcommands against the store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"eventmon/pkg/alert"
	"eventmon/pkg/bus"
	"eventmon/pkg/config"
	"eventmon/pkg/dashboard"
	"eventmon/pkg/events"
	"eventmon/pkg/export"
	"eventmon/pkg/filter"
	"eventmon/pkg/logger"
	"eventmon/pkg/monitor"
	"eventmon/pkg/stats"
	"eventmon/pkg/store"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "eventmond",
		Short: "Event monitoring and alerting pipeline",
		Long: `eventmond subscribes to the event bus, normalizes and stores every
event, keeps rolling statistics, and fires alert rules with throttling.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(runCmd(), queryCmd(), exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var st *store.Store
			if cfg.Store.DSN != "" {
				st, err = store.Open(ctx, cfg.Store.DSN, log)
				if err != nil {
					return fmt.Errorf("store: %w", err)
				}
				defer st.Close()
				if err := st.Init(ctx); err != nil {
					return fmt.Errorf("store init: %w", err)
				}
				go st.RunRetention(ctx, cfg.SweepInterval(), cfg.RetentionAge())
			} else {
				log.Warn("no store dsn configured, events are not persisted")
			}

			dispatcher := alert.NewDispatcher(alert.DispatcherOptions{
				Workers:   cfg.Alerts.Workers,
				QueueSize: cfg.Alerts.QueueSize,
				Timeout:   cfg.DispatchTimeout(),
				SMTPAddr:  cfg.Alerts.SMTP.Addr,
				SMTPFrom:  cfg.Alerts.SMTP.From,
			}, log)
			dispatcher.Start(ctx)

			engine := alert.NewEngine(dispatcher, log)
			if cfg.Alerts.RulesDir != "" {
				rules, err := alert.LoadDir(cfg.Alerts.RulesDir)
				if err != nil {
					return fmt.Errorf("rules: %w", err)
				}
				engine.SetRules(rules)
				log.Info("alert rules loaded",
					zap.Int("count", len(rules)), zap.String("dir", cfg.Alerts.RulesDir))
			}

			agg := stats.New()
			go agg.RunTicker(ctx, time.Minute, log)

			opts := monitor.Options{
				Stats:        agg,
				Alerts:       engine,
				BufferSize:   cfg.Monitor.BufferSize,
				StoreTimeout: cfg.StoreTimeout(),
				Logger:       log,
			}
			if st != nil {
				opts.Store = st
			}
			mon := monitor.New(opts)

			if cfg.Dashboard.Enabled {
				srv := dashboard.NewServer(cfg.Dashboard.Addr, mon, agg, log)
				mon.SetNotify(srv.Publish)
				go func() {
					if err := srv.Start(); err != nil {
						log.Error("dashboard server failed", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			nc, err := nats.Connect(cfg.NATS.URL,
				nats.RetryOnFailedConnect(true),
				nats.MaxReconnects(-1),
				nats.ReconnectWait(2*time.Second))
			if err != nil {
				return fmt.Errorf("nats: %w", err)
			}
			defer nc.Close()
			log.Info("connected to nats", zap.String("url", cfg.NATS.URL))

			src, err := bus.NewNATSSource(nc, cfg.NATS.Subject, log)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer src.Close()

			err = mon.Run(ctx, src)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

type queryFlags struct {
	domains     []string
	eventTypes  []string
	minSeverity string
	since       string
	until       string
	correlation string
	subject     string
	dsl         string
	format      string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&q.domains, "domain", nil, "Match any of these domains")
	cmd.Flags().StringSliceVar(&q.eventTypes, "type", nil, "Match any of these event types")
	cmd.Flags().StringVar(&q.minSeverity, "min-severity", "", "Minimum severity (debug, info, warning, error, critical)")
	cmd.Flags().StringVar(&q.since, "since", "", "Oldest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.until, "until", "", "Newest timestamp (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.correlation, "correlation", "", "Exact correlation id")
	cmd.Flags().StringVar(&q.subject, "subject", "", "Subject regex")
	cmd.Flags().StringVar(&q.dsl, "filter", "", `Filter expression, e.g. "domain:billing AND severity:error"`)
	cmd.Flags().StringVar(&q.format, "format", "json", "Output format: json, csv, yaml")
}

func (q *queryFlags) build() (*events.EventFilter, filter.Expr, error) {
	f := &events.EventFilter{
		Domains:        q.domains,
		EventTypes:     q.eventTypes,
		CorrelationID:  q.correlation,
		SubjectPattern: q.subject,
	}
	if q.minSeverity != "" {
		sev, err := events.ParseSeverity(q.minSeverity)
		if err != nil {
			return nil, nil, err
		}
		f.MinSeverity = &sev
	}
	if q.since != "" || q.until != "" {
		tr := &events.TimeRange{}
		var err error
		if q.since != "" {
			if tr.Start, err = parseTimeFlag(q.since); err != nil {
				return nil, nil, err
			}
		}
		if q.until != "" {
			if tr.End, err = parseTimeFlag(q.until); err != nil {
				return nil, nil, err
			}
		} else {
			tr.End = time.Now().UTC()
		}
		f.TimeRange = tr
	}

	var expr filter.Expr
	if q.dsl != "" {
		var err error
		expr, err = filter.Parse(q.dsl)
		if err != nil {
			return nil, nil, err
		}
	}
	return f, expr, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func runQuery(q *queryFlags) ([]*events.MonitoredEvent, export.Format, error) {
	format, err := export.ParseFormat(q.format)
	if err != nil {
		return nil, "", err
	}
	f, expr, err := q.build()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	if cfg.Store.DSN == "" {
		return nil, "", fmt.Errorf("store dsn is required (config store.dsn or POSTGRES_DSN)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.DSN, zap.NewNop())
	if err != nil {
		return nil, "", fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	found, err := st.Query(ctx, f)
	if err != nil {
		return nil, "", err
	}

	out := make([]*events.MonitoredEvent, 0, len(found))
	for i := range found {
		ev := &found[i]
		if expr != nil && !filter.Evaluate(expr, ev) {
			continue
		}
		out = append(out, ev)
	}
	return out, format, nil
}

func queryCmd() *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored events",
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, format, err := runQuery(q)
			if err != nil {
				return err
			}
			return export.Write(os.Stdout, format, evs)
		},
	}
	q.register(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	q := &queryFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			evs, format, err := runQuery(q)
			if err != nil {
				return err
			}
			if err := export.WriteFile(out, format, evs); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %d events to %s\n", len(evs), out)
			return nil
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output file path")
	return cmd
}
