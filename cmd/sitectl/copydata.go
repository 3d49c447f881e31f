package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"maritimeacademy/site-admin/internal/app"
	"maritimeacademy/site-admin/internal/config"
	"maritimeacademy/site-admin/internal/docstore"
)

var errTargetNotEmpty = errors.New("target collection is not empty")

func runCopyData(ctx context.Context, args []string, _ *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("copy-data", flag.ContinueOnError)
	var target config.StoreConfig
	fs.StringVar(&target.Backend, "to", "", "target backend: file, postgres or mongo")
	fs.StringVar(&target.DataDir, "to-dir", "", "target data directory for the file backend")
	fs.StringVar(&target.DatabaseURL, "to-database-url", "", "target postgres connection string")
	fs.StringVar(&target.MongoURI, "to-mongo-uri", "", "target mongo connection string")
	fs.StringVar(&target.MongoDBName, "to-mongo-db", "maritime", "target mongo database")
	force := fs.Bool("force", false, "overwrite collections that already hold documents")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if target.Backend == "" {
		fs.Usage()
		return fmt.Errorf("%w: -to is required", errUsage)
	}

	source, err := config.LoadStore()
	if err != nil {
		return fmt.Errorf("load source config: %w", err)
	}

	src, err := app.OpenStore(ctx, source, nil)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = src.Close(context.Background()) }()

	dst, err := app.OpenStore(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer func() { _ = dst.Close(context.Background()) }()

	return copyCollections(ctx, src.Store, dst.Store, app.Collections, *force, stdout)
}

// copyCollections replaces each named collection in dst with its contents
// in src. Without force it stops at the first non-empty target.
func copyCollections(ctx context.Context, src, dst *docstore.Store, names []string, force bool, stdout io.Writer) error {
	for _, name := range names {
		from, err := src.Collection(name)
		if err != nil {
			return err
		}
		to, err := dst.Collection(name)
		if err != nil {
			return err
		}

		if !force {
			n, err := to.Count(ctx, nil)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			if n > 0 {
				return fmt.Errorf("%s: %w (%d documents); use -force to overwrite", name, errTargetNotEmpty, n)
			}
		}

		docs, err := from.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := to.WriteAll(ctx, docs); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		fmt.Fprintf(stdout, "%s: copied %d documents\n", name, len(docs))
	}
	return nil
}
