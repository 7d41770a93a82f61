// Package client assembles the on-device sync engine: it opens the local
// SQLite store and the remote document store, wires the coordinator and
// runs one of the command modes until done or interrupted.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/caresync/internal/client/config"
	"github.com/dmitrijs2005/caresync/internal/client/localdb"
	"github.com/dmitrijs2005/caresync/internal/coordinator"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/remote/postgres"
	"github.com/dmitrijs2005/caresync/internal/syncer"
)

type Mode int

const (
	// ModePeriodic syncs every SyncInterval until interrupted.
	ModePeriodic Mode = iota
	ModeOnce
	ModeClean
	ModeHealth
	ModeCascade
	ModeResetCursor
)

func (m Mode) String() string {
	switch m {
	case ModePeriodic:
		return "periodic"
	case ModeOnce:
		return "once"
	case ModeClean:
		return "clean"
	case ModeHealth:
		return "health"
	case ModeCascade:
		return "cascade"
	case ModeResetCursor:
		return "reset-cursor"
	default:
		return "unknown"
	}
}

// Command selects what Run does. Entity and ID are used by the cascade and
// cursor-reset modes.
type Command struct {
	Mode   Mode
	Entity string
	ID     string
}

var ErrNotSynced = errors.New("sync pass did not complete")

type App struct {
	config  *config.Config
	logger  logging.Logger
	local   *localdb.Repositories
	closers []io.Closer
	coord   *coordinator.Coordinator
	out     io.Writer
}

// NewApp opens both stores and applies their migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel)

	local, err := localdb.InitDatabase(ctx, c.LocalDSN)
	if err != nil {
		return nil, fmt.Errorf("local db init error: %w", err)
	}

	rs, err := postgres.Open(ctx, c.RemoteDSN)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("remote db init error: %w", err)
	}

	app := newApp(c, logger, local, rs, os.Stdout)
	app.closers = append(app.closers, rs)
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, local *localdb.Repositories, rs remote.Store, out io.Writer) *App {
	opts := coordinator.Options{
		Interval:      c.SyncInterval,
		RetentionDays: c.RetentionDays,
		MaxRetries:    uint64(max(c.MaxRetries, 0)),
		RetryBackoff:  c.RetryBackoff,
		Sync: syncer.Options{
			PageSize:      c.PageSize,
			MaxPages:      c.MaxPages,
			PushBatchSize: c.PushBatchSize,
		},
	}
	return &App{
		config:  c,
		logger:  logger,
		local:   local,
		closers: []io.Closer{local},
		coord:   coordinator.New(local, rs, logger, opts),
		out:     out,
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run executes cmd and closes the stores afterwards.
func (app *App) Run(ctx context.Context, cmd Command) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close(ctx)

	app.initSignalHandler(cancelFunc)
	app.logger.Info(ctx, "Starting caresync...", "mode", cmd.Mode.String())

	switch cmd.Mode {
	case ModeOnce:
		report := app.coord.SyncNow(ctx)
		app.printReport(report)
		if report.Result() != syncer.Success {
			return fmt.Errorf("%w: %s", ErrNotSynced, report.Result())
		}
		return nil

	case ModeClean:
		report, res := app.coord.Clean(ctx)
		fmt.Fprintf(app.out, "purged %d tombstones older than %s (%s)\n",
			report.Total, report.Cutoff.Format("2006-01-02 15:04"), res)
		if res != syncer.Success {
			return fmt.Errorf("clean: %s", res)
		}
		return nil

	case ModeHealth:
		health, err := app.coord.Health(ctx)
		if err != nil {
			return err
		}
		for _, h := range health {
			fmt.Fprintf(app.out, "%-22s local=%-6d dirty=%d\n", h.Entity, h.Local, h.Dirty)
		}
		return nil

	case ModeCascade:
		res, err := app.coord.CascadeDelete(ctx, cmd.Entity, cmd.ID)
		if err != nil {
			return err
		}
		if res != syncer.Success {
			return fmt.Errorf("cascade delete %s/%s: %s", cmd.Entity, cmd.ID, res)
		}
		return nil

	case ModeResetCursor:
		return app.coord.ResetCursor(ctx, cmd.Entity)

	default:
		return app.coord.Run(ctx)
	}
}

func (app *App) printReport(r coordinator.Report) {
	for _, e := range r.Entities {
		fmt.Fprintf(app.out, "%-22s push=%s(%d) pull=%s(%d)\n",
			e.Entity, e.Push, e.PushAttempts, e.Pull, e.PullAttempts)
	}
}

func (app *App) close(ctx context.Context) {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error(ctx, "close failed", "error", err)
		}
	}
}
