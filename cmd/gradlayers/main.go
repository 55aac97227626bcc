// Package main provides the gradlayers CLI.
//
// Commands:
//
//	gradlayers version
//	gradlayers types
//	gradlayers check -config layer.yaml -shape 2,3,8,8 [-shape ...] [-bottom N] [-cont N]
//	gradlayers dump  -config a.yaml [-config b.yaml ...] -shape 2,3,8,8 -out dir
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/gradlayers/blob"
	"github.com/born-ml/gradlayers/gradcheck"
	"github.com/born-ml/gradlayers/nn"
)

const version = "v0.0.1-dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "gradlayers: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "gradlayers %s\n", version)
		return nil
	case "types":
		for _, typ := range nn.Types() {
			fmt.Fprintln(stdout, typ)
		}
		return nil
	case "check":
		return runCheck(args[1:], stdout, stderr)
	case "dump":
		return runDump(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	}
	usage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "gradlayers - layers with explicit gradients")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "  types      List registered layer types")
	fmt.Fprintln(w, "  check      Finite-difference gradient check of one layer")
	fmt.Fprintln(w, "  dump       Run layers forward and write every blob as text")
}

// listFlag collects a repeated string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseShape(s string) (blob.Shape, error) {
	parts := strings.Split(s, ",")
	shape := make(blob.Shape, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", s, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("shape %q: negative dimension", s)
		}
		shape = append(shape, d)
	}
	return shape, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	nn.SetLogger(logger)
	return logger
}

// gaussianBottoms allocates one N(0, std) blob per shape. The blob at index
// cont (if in range) holds continuation indicators instead: 0 for the first
// time step, 1 afterwards.
func gaussianBottoms(shapes []string, std float32, seed int64, cont int) ([]*blob.Blob, error) {
	rng := nn.NewRNG(seed)
	bottom := make([]*blob.Blob, len(shapes))
	for i, s := range shapes {
		shape, err := parseShape(s)
		if err != nil {
			return nil, err
		}
		b := blob.New(shape)
		if i == cont {
			perStep := b.CountFrom(1)
			for j := range b.Data() {
				if j >= perStep {
					b.Data()[j] = 1
				}
			}
		} else if err := nn.Fill(b, nn.FillerParameter{Type: "gaussian", Std: std}, rng); err != nil {
			return nil, err
		}
		bottom[i] = b
	}
	return bottom, nil
}

func runCheck(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	config := fs.String("config", "", "YAML layer configuration")
	var shapes listFlag
	fs.Var(&shapes, "shape", "bottom shape, comma separated (repeat per bottom)")
	bottomID := fs.Int("bottom", -1, "bottom to check (-1 = all)")
	cont := fs.Int("cont", -1, "bottom holding continuation indicators")
	numTops := fs.Int("tops", 1, "number of top blobs")
	step := fs.Float64("step", 1e-2, "finite-difference step")
	threshold := fs.Float64("threshold", 1e-3, "relative error threshold")
	seed := fs.Int64("seed", nn.DefaultSeed, "random seed")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *config == "" || len(shapes) == 0 {
		return errors.New("check: -config and at least one -shape are required")
	}
	logger := newLogger(stderr, *verbose)

	param, err := nn.LoadLayerParameter(*config)
	if err != nil {
		return err
	}
	layer, err := nn.New(param)
	if err != nil {
		return err
	}
	nn.SetRandomSeed(*seed)
	bottom, err := gaussianBottoms(shapes, 1, *seed, *cont)
	if err != nil {
		return err
	}
	top := make([]*blob.Blob, *numTops)
	for i := range top {
		top[i] = blob.New(nil)
	}

	checker := gradcheck.New(*step, *threshold)
	checker.Seed = *seed
	logger.Debug("checking gradients", "layer", param.Name, "type", param.Type, "bottom", *bottomID)
	if err := checker.CheckExhaustive(layer, bottom, top, *bottomID); err != nil {
		var m *gradcheck.Mismatch
		if errors.As(err, &m) {
			fmt.Fprintf(stdout, "FAIL %s (%s)\n", param.Name, param.Type)
		}
		return err
	}
	fmt.Fprintf(stdout, "ok %s (%s)\n", param.Name, param.Type)
	return nil
}

func runDump(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var configs listFlag
	fs.Var(&configs, "config", "YAML layer configuration (repeat to chain layers)")
	shape := fs.String("shape", "", "input shape, comma separated")
	out := fs.String("out", ".", "output directory")
	seed := fs.Int64("seed", nn.DefaultSeed, "random seed")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(configs) == 0 || *shape == "" {
		return errors.New("dump: at least one -config and -shape are required")
	}
	newLogger(stderr, *verbose)

	model := nn.NewSequential()
	for _, path := range configs {
		param, err := nn.LoadLayerParameter(path)
		if err != nil {
			return err
		}
		layer, err := nn.New(param)
		if err != nil {
			return err
		}
		model.Add(layer)
	}

	nn.SetRandomSeed(*seed)
	input, err := gaussianBottoms([]string{*shape}, 1, *seed, -1)
	if err != nil {
		return err
	}
	if err := model.SetUp(input[0]); err != nil {
		return err
	}
	if err := model.Forward(); err != nil {
		return err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	for i, b := range model.Blobs() {
		path := filepath.Join(*out, fmt.Sprintf("blob_%d.txt", i))
		if err := b.WriteTxt(path); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", path, b.ShapeString())
	}
	return nil
}
