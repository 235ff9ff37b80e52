package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/vainilla/asm"
	"github.com/chazu/vainilla/image"
	"github.com/chazu/vainilla/store"
)

// buildCommand handles `vainilla build`: assemble a .vm file into a .vmi
// image, optionally recording it in the image store.
func (c *cli) buildCommand(args []string) error {
	fs := c.newFlagSet("build", "[options] [file.vm]")
	output := fs.String("o", "", "Output image path (default: manifest [image] output or <file>.vmi)")
	name := fs.String("name", "", "Image name (default: project name or file base name)")
	withSource := fs.Bool("source", c.manifest.Image.IncludeSource, "Embed the assembly source in the image")
	toStore := fs.Bool("store", false, "Also put the image into the image store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fromManifest := fs.Arg(0) == ""
	path, err := c.entryPath(fs.Arg(0))
	if err != nil {
		return err
	}
	if filepath.Ext(path) != SourceExtension {
		return fmt.Errorf("%w: %s", errNeedSource, path)
	}

	img, err := buildImage(path, c.imageName(*name, path, fromManifest), *withSource)
	if err != nil {
		return err
	}

	out := *output
	if out == "" && fromManifest {
		out = c.manifest.ImagePath()
	}
	if out == "" {
		out = strings.TrimSuffix(path, SourceExtension) + image.Extension
	}
	if err := image.Save(out, img); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Built %s (%d instructions, %s)\n", out, img.Len(), img.Hash.Short())

	if *toStore {
		ctx := context.Background()
		s, err := store.Open(ctx, c.manifest.StorePath())
		if err != nil {
			return err
		}
		defer s.Close()
		hash, err := s.Put(ctx, img)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Stored %s in %s\n", hash[:12], s.Path())
	}
	return nil
}

func (c *cli) imageName(flagName, path string, fromManifest bool) string {
	if flagName != "" {
		return flagName
	}
	if fromManifest {
		return c.manifest.Name()
	}
	return strings.TrimSuffix(filepath.Base(path), SourceExtension)
}

// buildImage assembles the file at path into an image.
func buildImage(path, name string, withSource bool) (*image.Image, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	prog, err := asm.Assemble(string(source))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	embedded := ""
	if withSource {
		embedded = string(source)
	}
	return image.New(name, embedded, prog)
}
