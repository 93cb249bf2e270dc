// queuectl drives the shared queue from a terminal. It talks to the same
// state store as the API, so its writes show up on every screen.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/archive"
	"github.com/spec-kit/queue-service/internal/bootstrap"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/display"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/engine"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

const usage = `queuectl manages the walk-in queue.

Usage:
  queuectl [flags] <command>

Commands:
  status                      queue overview
  issue -s SUBJECT [-p high]  issue a ticket
  call|attend|complete -m N   module workflow
  pause|resume|toggle-pause -m N
                              module availability
  activate|deactivate -m N    administrative switch
  activate-all|deactivate-all
  reset                       archive and wipe the day
  archives                    list archived snapshots

Flags:
`

type options struct {
	module   int
	subject  string
	priority string
	asJSON   bool
	actor    string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("queuectl", pflag.ContinueOnError)
	flagSet.IntVarP(&opts.module, "module", "m", 0, "module id")
	flagSet.StringVarP(&opts.subject, "subject", "s", "", "subject document id for issue")
	flagSet.StringVarP(&opts.priority, "priority", "p", "normal", "ticket priority: normal or high")
	flagSet.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	flagSet.StringVar(&opts.actor, "actor", "queuectl", "name recorded on emitted events")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return errors.New("exactly one command required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(config.LoggerConfig{Level: "warn"}, cfg.App.Env)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()
	if cfg.Store.Backend == "" || cfg.Store.Backend == "memory" {
		logger.Warn("memory backend is process-local; queuectl changes are not shared")
	}

	store, err := backends.NewStateStore(ctx)
	if err != nil {
		return err
	}
	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	svc, announcements := newService(cfg, logger, store, archiver)
	defer announcements.Wait()
	return execute(ctx, svc, archiver, flagSet.Arg(0), opts, out)
}

// newService wires the queue service with the same event dispatcher and
// announcement handlers as the API.
func newService(cfg *config.Config, logger *zap.Logger, store repository.StateStore, archiver archive.Archiver) (*service.QueueService, *service.AnnouncementService) {
	dispatcher := events.NewInMemoryDispatcher()
	svc := service.NewQueueService(service.QueueDependencies{
		Store:        store,
		Engine:       engine.New(engine.WithCallHistorySize(cfg.Queue.CallHistorySize)),
		Dispatcher:   dispatcher,
		Archiver:     archiver,
		Logger:       logger,
		WriteRetries: cfg.Queue.WriteRetries,
	})
	announcements := service.NewAnnouncementService(dispatcher, logger, cfg.Announce)
	worker.StartAnnouncementWorker(announcements)
	return svc, announcements
}

func execute(ctx context.Context, svc *service.QueueService, archiver archive.Archiver, command string, opts options, out io.Writer) error {
	actor := events.Actor{Role: domain.RoleAdmin, Username: opts.actor}
	moduleOps := map[string]func(context.Context, events.Actor, int) (*domain.SystemState, error){
		"call":         svc.CallTicket,
		"attend":       svc.AttendTicket,
		"complete":     svc.CompleteTicket,
		"pause":        svc.PauseModule,
		"resume":       svc.ResumeModule,
		"toggle-pause": svc.TogglePause,
		"activate":     svc.ActivateModule,
		"deactivate":   svc.DeactivateModule,
	}

	if op, ok := moduleOps[command]; ok {
		if opts.module <= 0 {
			return fmt.Errorf("%s requires --module", command)
		}
		state, err := op(ctx, actor, opts.module)
		if err != nil {
			return err
		}
		return printOverview(out, state, opts.asJSON)
	}

	switch command {
	case "status":
		state, err := svc.Snapshot(ctx)
		if err != nil {
			return err
		}
		return printOverview(out, state, opts.asJSON)
	case "issue":
		subject := strings.TrimSpace(opts.subject)
		if len(subject) < 4 {
			return errors.New("--subject must have at least 4 characters")
		}
		priority := domain.Priority(strings.ToLower(opts.priority))
		if !priority.Valid() {
			return fmt.Errorf("unknown priority %q", opts.priority)
		}
		res, err := svc.IssueTicket(ctx, actor, subject, priority)
		if err != nil {
			return err
		}
		if opts.asJSON {
			return json.NewEncoder(out).Encode(res.Ticket)
		}
		if res.ModuleID > 0 {
			fmt.Fprintf(out, "%s -> module %d\n", res.Ticket.Code, res.ModuleID)
			return nil
		}
		fmt.Fprintf(out, "%s waiting (%d in line)\n", res.Ticket.Code, len(res.State.HighQueue)+len(res.State.Queue))
		return nil
	case "activate-all", "deactivate-all":
		op := svc.ActivateAll
		if command == "deactivate-all" {
			op = svc.DeactivateAll
		}
		state, err := op(ctx, actor)
		if err != nil {
			return err
		}
		return printOverview(out, state, opts.asJSON)
	case "reset":
		res, err := svc.Reset(ctx, actor)
		if err != nil {
			return err
		}
		if res.ArchiveKey != "" {
			fmt.Fprintf(out, "archived %s\n", res.ArchiveKey)
		}
		fmt.Fprintf(out, "reset at version %d\n", res.State.Version)
		return nil
	case "archives":
		keys, err := archiver.List(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func printOverview(out io.Writer, state *domain.SystemState, asJSON bool) error {
	o := display.BuildOverview(state)
	if asJSON {
		return json.NewEncoder(out).Encode(o)
	}
	fmt.Fprintf(out, "next %s  waiting %d (high %d)  active modules %d  version %d\n",
		o.NextCode, o.TotalWaiting, o.HighWaiting, o.ActiveModules, o.Version)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tSTATUS\tTICKET")
	for _, m := range o.Modules {
		ticket := m.Ticket
		if ticket == "" {
			ticket = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.ID, m.Status, ticket)
	}
	return w.Flush()
}
