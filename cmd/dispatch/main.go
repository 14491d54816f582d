// Command dispatch inspects and serves a narrative-dispatch scheduler
// database. The scheduler itself is a library; this binary offers the
// operator surface: queue and statistics views, plus a daemon mode that runs
// the deadline watchdog and the notification dispatcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Marksio90/narrative-dispatch/internal/config"
	"github.com/Marksio90/narrative-dispatch/internal/events"
	"github.com/Marksio90/narrative-dispatch/internal/notify"
	"github.com/Marksio90/narrative-dispatch/internal/scheduler"
	"github.com/Marksio90/narrative-dispatch/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if len(os.Args) < 2 {
		usage()
		return nil
	}

	st, err := store.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	switch os.Args[1] {
	case "queue":
		return runQueue(ctx, st, os.Args[2:])
	case "stats":
		return runStats(ctx, st, os.Args[2:])
	case "serve":
		return runServe(ctx, st, cfg)
	default:
		usage()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: dispatch <command> [flags]

Commands:
  queue  -project <id>              Show the task queue in scheduling order
  stats  -project <id> | -agent <id>  Show project or agent statistics
  serve                             Run the watchdog and notification dispatcher`)
}

func runQueue(ctx context.Context, st scheduler.Store, args []string) error {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	project := fs.String("project", "", "project id")
	fs.Parse(args)
	if *project == "" {
		return fmt.Errorf("queue: -project is required")
	}

	tasks, err := st.ListTasks(ctx, *project, scheduler.TaskFilter{})
	if err != nil {
		return err
	}
	scheduler.SortQueue(tasks)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tSTATUS\tAGENT\tDEADLINE")
	for _, t := range tasks {
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Format(time.RFC3339)
		}
		agent := t.AssignedAgentID
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Priority, t.Status, agent, deadline)
	}
	return w.Flush()
}

func runStats(ctx context.Context, st scheduler.Store, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	project := fs.String("project", "", "project id")
	agent := fs.String("agent", "", "agent id")
	fs.Parse(args)

	stats := scheduler.NewStats(st)
	switch {
	case *agent != "":
		as, err := stats.Agent(ctx, *agent)
		if err != nil {
			return err
		}
		fmt.Printf("agent %s\n", as.AgentID)
		fmt.Printf("  completed:     %d\n", as.TasksCompleted)
		fmt.Printf("  failed:        %d\n", as.TasksFailed)
		fmt.Printf("  success rate:  %.2f\n", as.SuccessRate)
		fmt.Printf("  avg time:      %s\n", as.AvgCompletionTime)
		fmt.Printf("  satisfaction:  %.2f\n", as.SatisfactionScore)
		return nil
	case *project != "":
		ps, err := stats.Project(ctx, *project)
		if err != nil {
			return err
		}
		fmt.Printf("project %s: %d tasks, %d overdue, avg completion %s\n",
			ps.ProjectID, ps.Total, ps.Overdue, ps.AvgCompletionTime)
		for status, count := range ps.ByStatus {
			fmt.Printf("  %-12s %d\n", status.String(), count)
		}
		return nil
	default:
		return fmt.Errorf("stats: -project or -agent is required")
	}
}

func runServe(ctx context.Context, st scheduler.Store, cfg *config.DispatchConfig) error {
	bus := events.NewBus()
	defer bus.Close()

	watchdog := scheduler.NewWatchdog(st, bus, time.Duration(cfg.WatchdogIntervalSec)*time.Second)
	dispatcher := notify.NewDispatcher(notify.LogNotifier{}, bus, notify.RetryConfig{
		InitialInterval: time.Duration(cfg.Notify.InitialIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Notify.MaxIntervalMS) * time.Millisecond,
		MaxElapsedTime:  time.Duration(cfg.Notify.MaxElapsedTimeSec) * time.Second,
		Multiplier:      2.0,
	})

	go dispatcher.Run(ctx)
	watchdog.Run(ctx)
	return nil
}
