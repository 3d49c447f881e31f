package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"maritimeacademy/site-admin/internal/app"
	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/config"
)

// openServices loads the full configuration and opens the store it names.
// The returned func closes the store.
func openServices(ctx context.Context) (*app.Services, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	storage, err := app.OpenStore(ctx, cfg.Store, nil)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = storage.Close(context.Background()) }
	services, err := app.BuildServices(storage.Store, cfg.Auth, nil)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return services, closeFn, nil
}

func runCreateAdmin(ctx context.Context, args []string, stdin *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	email := fs.String("email", "", "account email (required)")
	name := fs.String("name", "", "display name")
	roles := fs.String("roles", string(auth.RoleSuperAdmin), "comma-separated roles")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *email == "" {
		fs.Usage()
		return fmt.Errorf("%w: -email is required", errUsage)
	}

	pass, err := readPassword(stdin, stdout, "Password: ")
	if err != nil {
		return err
	}

	services, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	return createAdmin(ctx, services.Auth, stdout, auth.NewAccount{
		Email:     *email,
		Name:      *name,
		Password:  pass,
		Roles:     strings.Split(*roles, ","),
		CreatedBy: "sitectl",
	})
}

func createAdmin(ctx context.Context, svc *auth.Service, stdout io.Writer, in auth.NewAccount) error {
	acct, err := svc.CreateAccount(ctx, in)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	fmt.Fprintf(stdout, "created %s (%s) with roles %v\n", acct.Email, acct.ID, acct.Roles)
	return nil
}

func runPruneSessions(ctx context.Context, args []string, _ *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("prune-sessions", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	services, closeFn, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := services.Auth.PruneSessions(ctx)
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	fmt.Fprintf(stdout, "removed %d expired sessions\n", n)
	return nil
}
