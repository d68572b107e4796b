package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/leeforge/pngpress/compress"
	"github.com/leeforge/pngpress/json"
	"github.com/leeforge/pngpress/logging"
	"github.com/leeforge/pngpress/service"
	"github.com/leeforge/pngpress/storage"
)

// fileResult is one line of the batch report.
type fileResult struct {
	Source     string        `json:"source"`
	Output     string        `json:"output,omitempty"`
	InputSize  int           `json:"inputSize"`
	OutputSize int           `json:"outputSize,omitempty"`
	Took       time.Duration `json:"took"`
	Error      string        `json:"error,omitempty"`
}

func (r fileResult) failed() bool {
	return r.Error != ""
}

// batchOptions are the per-file settings of a compress run.
type batchOptions struct {
	compress *compress.Options
	unique   bool
}

func compressFiles(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("compress", stderr, &common)
	width := fs.Uint32("width", 0, "downscale to this width, keeping the aspect ratio")
	level := fs.Uint8("level", 2, "optimization preset 0 (fastest) to 6 (smallest)")
	strip := fs.String("strip", "none", "metadata to strip: none, safe or all")
	fs.String("out", "out", "output directory for the local storage driver")
	fs.String("storage", "local", "storage driver: local or oss")
	unique := fs.Bool("unique", false, "add a random suffix to output names")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageError{fmt.Errorf("compress needs at least one file")}
	}

	app, logger, err := load(fs, &common, map[string]string{
		"storage.local.dir": "out",
		"storage.driver":    "storage",
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	provider, err := service.NewStorage(app, "")
	if err != nil {
		return err
	}
	svc, err := service.FromConfig(ctx, app, logger)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	opts := batchOptions{compress: flagOptions(fs, *width, *level, *strip), unique: *unique}
	results := runBatch(ctx, svc, provider, fs.Args(), opts, logger)

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		writeReport(stdout, results)
	}

	failed := 0
	for _, r := range results {
		if r.failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// flagOptions sets only the options whose flags were given, so the
// compressor defaults apply otherwise.
func flagOptions(fs *pflag.FlagSet, width uint32, level uint8, strip string) *compress.Options {
	opts := &compress.Options{}
	if fs.Changed("width") {
		opts.Width = &width
	}
	if fs.Changed("level") {
		opts.Level = &level
	}
	if fs.Changed("strip") {
		opts.Strip = &strip
	}
	return opts
}

// runBatch compresses every file concurrently. At most one file per worker
// is read into memory at a time. Results keep the order of files.
func runBatch(ctx context.Context, svc *service.Service, provider storage.Provider, files []string, opts batchOptions, logger logging.Logger) []fileResult {
	names := objectNames(files, opts.unique)
	results := make([]fileResult, len(files))
	sem := make(chan struct{}, max(svc.Workers(), 1))

	var wg sync.WaitGroup
	for i, file := range files {
		i, file := i, file
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = compressOne(ctx, svc, provider, file, names[i], opts)
			if results[i].failed() {
				logger.Warn("batch.file_failed", zap.String("source", file), zap.String("error", results[i].Error))
			}
		}()
	}
	wg.Wait()
	return results
}

// objectNames picks the output key of every file. Files whose base names
// collide get a random suffix so no output replaces another.
func objectNames(files []string, unique bool) []string {
	counts := make(map[string]int, len(files))
	for _, file := range files {
		counts[storage.ObjectName(file)]++
	}
	names := make([]string, len(files))
	for i, file := range files {
		name := storage.ObjectName(file)
		if unique || counts[name] > 1 {
			name = storage.UniqueObjectName(file)
		}
		names[i] = name
	}
	return names
}

func compressOne(ctx context.Context, svc *service.Service, provider storage.Provider, file, name string, opts batchOptions) fileResult {
	res := fileResult{Source: file}
	data, err := os.ReadFile(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.InputSize = len(data)

	out, err := svc.Compress(ctx, data, opts.compress)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OutputSize = len(out.Data)
	res.Took = out.Took

	uploaded, err := provider.Upload(ctx, storage.UploadInput{Data: out.Data, Key: name, ContentType: "image/png"})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Output = uploaded.URL
	return res
}

func writeReport(w io.Writer, results []fileResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var in, out uint64
	failed := 0
	for _, r := range results {
		if r.failed() {
			failed++
			fmt.Fprintf(tw, "%s\tFAILED\t%s\n", r.Source, r.Error)
			continue
		}
		in += uint64(r.InputSize)
		out += uint64(r.OutputSize)
		fmt.Fprintf(tw, "%s\t%s -> %s (%s)\t%s\n",
			r.Source,
			humanize.Bytes(uint64(r.InputSize)),
			humanize.Bytes(uint64(r.OutputSize)),
			savings(r.InputSize, r.OutputSize),
			r.Output,
		)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "%d files, %d failed, %s -> %s",
		len(results), failed, humanize.Bytes(in), humanize.Bytes(out))
	if in > out {
		fmt.Fprintf(w, ", saved %s", humanize.Bytes(in-out))
	}
	fmt.Fprintln(w)
}

func savings(in, out int) string {
	if in == 0 {
		return "0%"
	}
	return fmt.Sprintf("%+.1f%%", 100*float64(out-in)/float64(in))
}
