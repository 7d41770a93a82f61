package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/caresync/internal/client"
	"github.com/dmitrijs2005/caresync/internal/client/config"
	"github.com/dmitrijs2005/caresync/internal/flagx"
)

var modeFlags = flagx.Allowed{
	"-once": false, "-clean": false, "-health": false,
	"-cascade": true, "-id": true, "-reset-cursor": true,
}

func parseCommand(args []string) (client.Command, error) {
	var (
		cmd                  client.Command
		once, clean, health  bool
		cascade, resetCursor string
	)
	fs := flag.NewFlagSet("caresync-mode", flag.ContinueOnError)
	fs.BoolVar(&once, "once", false, "run one push+pull pass and exit")
	fs.BoolVar(&clean, "clean", false, "purge expired tombstones and exit")
	fs.BoolVar(&health, "health", false, "print local and dirty counts per entity")
	fs.StringVar(&cascade, "cascade", "", "entity to hard-delete a record of (with -id)")
	fs.StringVar(&cmd.ID, "id", "", "record id for -cascade")
	fs.StringVar(&resetCursor, "reset-cursor", "", "entity whose pull cursor is forgotten")
	if err := fs.Parse(flagx.FilterArgs(args, modeFlags)); err != nil {
		return cmd, err
	}

	switch {
	case once:
		cmd.Mode = client.ModeOnce
	case clean:
		cmd.Mode = client.ModeClean
	case health:
		cmd.Mode = client.ModeHealth
	case cascade != "":
		cmd.Mode, cmd.Entity = client.ModeCascade, cascade
	case resetCursor != "":
		cmd.Mode, cmd.Entity = client.ModeResetCursor, resetCursor
	default:
		cmd.Mode = client.ModePeriodic
	}
	return cmd, nil
}

func main() {
	args := os.Args[1:]

	cfg, err := config.LoadConfig(args)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cmd, err := parseCommand(args)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	app, err := client.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx, cmd); err != nil {
		log.Fatalf("%v", err)
	}
}
