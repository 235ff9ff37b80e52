package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/vainilla/image"
	"github.com/chazu/vainilla/store"
	"github.com/chazu/vainilla/vm"
)

const storeUsage = `<subcommand> [arguments]

Subcommands:
  put <file.vm|file.vmi>   Assemble or load a program and store its image
  list                     List stored images, newest first
  show <ref>               Disassemble a stored image
  run <ref>                Run a stored image
  rm <ref>                 Delete a stored image

A ref is a hash prefix or an image name (the newest image with that name).`

// storeCommand handles `vainilla store <subcommand>`.
func (c *cli) storeCommand(args []string) error {
	fs := c.newFlagSet("store", storeUsage)
	dbPath := fs.String("db", c.manifest.StorePath(), "Image store database")
	debug := fs.Bool("debug", c.debug, "Step through `store run` with an interactive menu")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("store: missing subcommand")
	}
	sub, rest := fs.Arg(0), fs.Args()[1:]

	ctx := context.Background()
	s, err := store.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	switch sub {
	case "put":
		return c.storePut(ctx, s, rest)
	case "list", "ls":
		return c.storeList(ctx, s)
	case "show":
		img, err := lookupImage(ctx, s, rest)
		if err != nil {
			return err
		}
		prog, err := img.Instructions()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "; %s %s\n", img.Hash, img.Name)
		fmt.Fprint(c.stdout, vm.Disassemble(prog))
		return nil
	case "run":
		img, err := lookupImage(ctx, s, rest)
		if err != nil {
			return err
		}
		prog, err := img.Instructions()
		if err != nil {
			return err
		}
		return c.execute(prog, c.manifest.Prompt(), *debug)
	case "rm":
		if len(rest) != 1 {
			return errors.New("store rm: expected one hash prefix")
		}
		if err := s.Delete(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Deleted %s\n", rest[0])
		return nil
	default:
		return fmt.Errorf("store: unknown subcommand %q", sub)
	}
}

func (c *cli) storePut(ctx context.Context, s *store.Store, args []string) error {
	if len(args) != 1 {
		return errors.New("store put: expected one file")
	}
	path := args[0]

	var img *image.Image
	var err error
	switch filepath.Ext(path) {
	case SourceExtension:
		name := strings.TrimSuffix(filepath.Base(path), SourceExtension)
		img, err = buildImage(path, name, c.manifest.Image.IncludeSource)
	case image.Extension:
		img, err = image.Load(path)
	default:
		err = fmt.Errorf("%w: %s", errNeedSource, path)
	}
	if err != nil {
		return err
	}

	hash, err := s.Put(ctx, img)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", hash, img.Name)
	return nil
}

func (c *cli) storeList(ctx context.Context, s *store.Store) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.stdout, "No images stored.")
		return nil
	}
	fmt.Fprintf(c.stdout, "%-12s  %-20s  %6s  %s\n", "HASH", "NAME", "INSTRS", "CREATED")
	for _, e := range entries {
		fmt.Fprintf(c.stdout, "%-12s  %-20s  %6d  %s\n",
			e.Hash[:12], e.Name, e.Size, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// lookupImage resolves a hash prefix first, then falls back to the newest
// image with that name.
func lookupImage(ctx context.Context, s *store.Store, args []string) (*image.Image, error) {
	if len(args) != 1 {
		return nil, errors.New("expected one image reference")
	}
	ref := args[0]
	img, err := s.Get(ctx, ref)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return img, err
	}
	img, nameErr := s.GetByName(ctx, ref)
	if nameErr != nil {
		if errors.Is(nameErr, store.ErrNotFound) {
			return nil, fmt.Errorf("no image matches %q: %w", ref, store.ErrNotFound)
		}
		return nil, nameErr
	}
	return img, nil
}
