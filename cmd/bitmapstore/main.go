// Command bitmapstore stores, lists and retrieves images in a bitmapstore
// directory.
//
// Usage:
//
//	bitmapstore [-dir DIR] store <image-file> [name]
//	bitmapstore [-dir DIR] get <id>
//	bitmapstore [-dir DIR] load <id> <out-file>
//	bitmapstore [-dir DIR] list
//	bitmapstore [-dir DIR] orphans
//	bitmapstore [-dir DIR] archive <out-file>
//	bitmapstore version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alexjoedt/bitmapstore"
)

const (
	version = "0.1.0"
	appName = "bitmapstore"
)

var errUsage = errors.New("usage error")

// Config holds the command configuration.
type Config struct {
	Dir       string
	LogLevel  slog.Level
	LogFormat string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	dirFlag := fs.String("dir", "", "storage directory (overrides BITMAPSTORE_DIR)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return errUsage
	}

	cmd, rest := rest[0], rest[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "%s v%s\n", appName, version)
		return nil
	case "help":
		printUsage(stdout)
		return nil
	case "store", "get", "load", "list", "orphans", "archive":
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", cmd)
		printUsage(stderr)
		return errUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *dirFlag != "" {
		cfg.Dir = *dirFlag
	}

	storage, err := bitmapstore.NewStorage(cfg.Dir, bitmapstore.WithLogger(newLogger(cfg, stderr)))
	if err != nil {
		return err
	}

	switch cmd {
	case "store":
		return runStore(ctx, storage, rest, stdout, stderr)
	case "get":
		return runGet(storage, rest, stdout, stderr)
	case "load":
		return runLoad(ctx, storage, rest, stdout, stderr)
	case "list":
		return runList(storage, stdout)
	case "orphans":
		return runOrphans(ctx, storage, stdout)
	default: // archive
		return runArchive(ctx, storage, rest, stderr)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s v%s - local image storage

Usage:
  %s [-dir DIR] <command> [args]

Commands:
  store <image-file> [name]   Store a PNG, JPEG or GIF image (saved as PNG), print its id
  get <id>                    Print metadata as JSON
  load <id> <out-file>        Write the stored PNG to out-file
  list                        List all images, newest first
  orphans                     List image files that have no metadata
  archive <out-file>          Write a zstd-compressed tar backup
  version                     Print version

Environment variables:
  BITMAPSTORE_DIR         Storage directory (default: ~/Documents/BitmapManager)
  BITMAPSTORE_LOG_LEVEL   debug, info, warn or error (default: warn)
  BITMAPSTORE_LOG_FORMAT  text or json (default: text)
`, appName, version, appName)
}

func loadConfig() (Config, error) {
	dir := os.Getenv("BITMAPSTORE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, "Documents", "BitmapManager")
	}

	level := slog.LevelWarn
	if v := os.Getenv("BITMAPSTORE_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("invalid BITMAPSTORE_LOG_LEVEL %q: %w", v, err)
		}
	}

	format := strings.ToLower(os.Getenv("BITMAPSTORE_LOG_FORMAT"))
	switch format {
	case "":
		format = "text"
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("invalid BITMAPSTORE_LOG_FORMAT %q", format)
	}

	return Config{
		Dir:       dir,
		LogLevel:  level,
		LogFormat: format,
	}, nil
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func runStore(ctx context.Context, storage *bitmapstore.Storage, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(stderr, "usage: store <image-file> [name]")
		return errUsage
	}

	path := args[0]
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(args) == 2 {
		name = args[1]
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	id, err := storage.StoreImage(ctx, img, name)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, id)
	return nil
}

func runGet(storage *bitmapstore.Storage, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: get <id>")
		return errUsage
	}

	rec, ok := storage.GetMetadata(args[0])
	if !ok {
		return fmt.Errorf("no image with id %q", args[0])
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runLoad(ctx context.Context, storage *bitmapstore.Storage, args []string, stdout, stderr io.Writer) error {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "usage: load <id> <out-file>")
		return errUsage
	}

	data, ok, err := storage.LoadBlob(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no image with id %q", args[0])
	}

	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(data), args[1])
	return nil
}

func runList(storage *bitmapstore.Storage, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTORED (UTC)")
	for _, rec := range storage.ListAll() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.ID, rec.Name, rec.StoredAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func runOrphans(ctx context.Context, storage *bitmapstore.Storage, stdout io.Writer) error {
	orphans, err := storage.Orphans(ctx)
	if err != nil {
		return err
	}

	for _, path := range orphans {
		fmt.Fprintln(stdout, path)
	}
	return nil
}

func runArchive(ctx context.Context, storage *bitmapstore.Storage, args []string, stderr io.Writer) (err error) {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: archive <out-file>")
		return errUsage
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		// A partial archive is worse than none.
		if err != nil {
			_ = os.Remove(args[0])
		}
	}()

	return storage.Archive(ctx, f)
}
