// Command admin is the operator CLI: save management, schema checks, token
// minting and event queries against the store or the journal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dr-vortex/annihilation/internal/config"
	"github.com/dr-vortex/annihilation/internal/logging"
	"github.com/dr-vortex/annihilation/internal/persistence/store"
)

type command struct {
	run  func(args []string, out io.Writer) error
	help string
}

var commands = map[string]command{
	"saves":    {savesCmd, "list saves (-level to filter)"},
	"export":   {exportCmd, "write a save to a .snap.zst or .json file"},
	"import":   {importCmd, "check a save file and store it under -id"},
	"delete":   {deleteCmd, "delete a save"},
	"validate": {validateCmd, "schema-check and dry-run restore a save file"},
	"token":    {tokenCmd, "mint a session token (needs JWT_SECRET)"},
	"events":   {eventsCmd, "query the event index or the journal"},
	"stats":    {statsCmd, "print a running server's stats"},
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		os.Exit(2)
	}
	if err := cmd.run(os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: admin <command> [flags]")
	for _, n := range names {
		fmt.Fprintf(w, "  %-9s %s\n", n, commands[n].help)
	}
}

// storeFlags are shared by commands that open the save store. Unset flags
// fall back to the server's environment configuration.
type storeFlags struct {
	env    *string
	driver *string
	dsn    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		env:    fs.String("env", ".env", "dotenv file"),
		driver: fs.String("driver", "", "store driver (default: STORE_DRIVER)"),
		dsn:    fs.String("dsn", "", "store dsn (default: STORE_DSN or <data>/annihilation.sqlite)"),
	}
}

func (f storeFlags) config() (config.Config, error) {
	return config.Load(*f.env)
}

func (f storeFlags) open(ctx context.Context) (*store.Store, error) {
	cfg, err := f.config()
	if err != nil {
		return nil, err
	}
	driver, dsn := cfg.Store.Driver, cfg.Store.DSN
	if v := strings.TrimSpace(*f.driver); v != "" {
		driver = v
	}
	if v := strings.TrimSpace(*f.dsn); v != "" {
		dsn = v
	}
	if driver == store.DriverSQLite && dsn == "" {
		dsn = filepath.Join(cfg.DataDir, "annihilation.sqlite")
	}
	logger, err := logging.New(os.Stderr, "warn", cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, driver, dsn, logger)
}
