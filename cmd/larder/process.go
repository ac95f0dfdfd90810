package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/pipeline"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/server/endpoints"
	"github.com/jackzampolin/larder/internal/store"
)

var (
	processUnits string
	processKind  string
	processSave  bool
)

var processCmd = &cobra.Command{
	Use:   "process <file|->",
	Short: "Process a recipe file locally without a server",
	Long: `Run the full pipeline in this process: extract text, structure it,
classify and convert the recipe, recovering once if parsing fails.

Use "larder api process" to send the file to a running server instead.
With --save the converted recipe is written to the configured store.

Examples:
  larder process bread.jpg --units metric
  larder process cookbook-page.pdf -o table
  pbpaste | larder process - --kind text`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(os.Stderr)

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		in, err := readInput(args[0])
		if err != nil {
			return err
		}
		if processKind != "" {
			in.Kind = extract.ParseKind(processKind)
			if in.Kind == extract.KindUnknown {
				return fmt.Errorf("unknown kind %q (want image, pdf or text)", processKind)
			}
		}

		opts := pipeline.Options{Logger: logger}
		if processSave {
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path := cfg.Storage.Path
			if path == "" {
				path = h.StorePath()
			}
			st, err := store.Open(cfg.Storage.Driver, path, logger)
			if err != nil {
				return err
			}
			if c, ok := st.(io.Closer); ok {
				defer c.Close()
			}
			opts.Store = st
		}
		p := pipeline.FromConfig(cfg, opts)

		system := p.DefaultUnits()
		if processUnits != "" {
			if system, err = recipe.ParseUnitSystem(processUnits); err != nil {
				return err
			}
		}

		out := p.Process(cmd.Context(), in, progressPrinter(os.Stderr), system)
		if !out.Succeeded() {
			f := out.Failure()
			msg := fmt.Sprintf("%s: %s", f.Kind, f.Message)
			if f.Remedy != "" {
				msg += "\n" + f.Remedy
			}
			return errors.New(msg)
		}

		if processSave {
			id, err := p.Save(cmd.Context(), *out.Result)
			if err != nil {
				return err
			}
			out.RecipeID = id
		}
		return endpoints.OutputOutcome(out)
	},
}

// readInput reads a file argument, or stdin for "-".
func readInput(arg string) (extract.RawInput, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return extract.RawInput{}, fmt.Errorf("failed to read stdin: %w", err)
		}
		return extract.RawInput{Data: data}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return extract.RawInput{}, err
	}
	return extract.RawInput{Data: data, Filename: filepath.Base(arg)}, nil
}

// progressPrinter draws extraction progress on w when it is a terminal.
func progressPrinter(w *os.File) extract.ProgressFunc {
	fd := w.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return func(pr extract.Progress) {
		line := fmt.Sprintf("extracting %3d%%", pr.Percent)
		if pr.Warning != "" {
			line += "  " + pr.Warning
		}
		fmt.Fprintf(w, "\r%-72s", line)
		if pr.Percent >= 100 {
			fmt.Fprintln(w)
		}
	}
}

func init() {
	processCmd.Flags().StringVar(&processUnits, "units", "", "Target units: original, metric or imperial (default: config)")
	processCmd.Flags().StringVar(&processKind, "kind", "", "Declared input kind: image, pdf or text (default: detect)")
	processCmd.Flags().BoolVar(&processSave, "save", false, "Save the converted recipe to the store")

	rootCmd.AddCommand(processCmd)
}
