// Command sitectl holds operator tasks for the site backend: password
// hashing, first admin creation, session cleanup, copying data between
// store backends and waiting for the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdin *os.File, stdout io.Writer) error
}

var commands = []command{
	{"hash-password", "read a password and print its bcrypt hash", runHashPassword},
	{"create-admin", "create an admin account in the configured store", runCreateAdmin},
	{"prune-sessions", "delete expired sessions", runPruneSessions},
	{"copy-data", "copy every collection from the configured store to another backend", runCopyData},
	{"wait-db", "wait until the postgres database accepts connections", runWaitDB},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sitectl <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-15s %s\n", c.name, c.summary)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, args[1:], stdin, stdout)
		}
	}
	usage(stderr)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			if err != errUsage {
				log.Print(err)
			}
			os.Exit(2)
		}
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
