// Package main implements loopchat-copy, which copies files in parallel
// ranges on the worker pool. With -bench it instead times a sequential and a
// parallel copy of a synthetic file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"tools.zach/dev/loopchat/internal/app"
	"tools.zach/dev/loopchat/internal/buildinfo"
	"tools.zach/dev/loopchat/internal/fileio"
	"tools.zach/dev/loopchat/internal/pool"
)

// errNoMatches is returned when the source pattern matches no files.
var errNoMatches = errors.New("no files match")

// ///////////////////////////////////////////////
// Copier
// ///////////////////////////////////////////////

// copier runs parallel copies on a shared pool and reports to out.
type copier struct {
	exec fileio.Executor
	// workers is the pool size, used when chunkSize is 0.
	workers int
	// chunkSize is the byte length of each copied range; 0 means one range
	// per worker.
	chunkSize int64
	out       io.Writer
	logger    *slog.Logger
}

// copyFile copies src to dst and checks the result has the source's length.
func (c *copier) copyFile(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("creating destination directory: %w", err)
	}

	parts := fileio.PartsFor(info.Size(), c.chunkSize, c.workers)
	c.logger.Debug("copying", "src", src, "dst", dst, "bytes", info.Size(), "parts", parts)
	if err := fileio.CopyParallel(c.exec, src, dst, parts); err != nil {
		return 0, err
	}
	if err := sameLength(src, dst); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// copyGlob copies every file matching pattern into destDir, keeping each
// file's path relative to the pattern's fixed prefix. It returns the number
// of files copied; a failed file does not stop the others.
func (c *copier) copyGlob(pattern, destDir string) (int, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return 0, fmt.Errorf("expanding %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w %s", errNoMatches, pattern)
	}

	base, _ := doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(pattern)))
	baseDir := filepath.FromSlash(base)

	var errs []error
	copied := 0
	for _, m := range matches {
		rel, err := filepath.Rel(baseDir, m)
		if err != nil {
			rel = filepath.Base(m)
		}
		dst := filepath.Join(destDir, rel)

		start := time.Now()
		n, err := c.copyFile(m, dst)
		if err != nil {
			c.logger.Warn("copy failed", "src", m, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", m, err))
			continue
		}
		copied++
		fmt.Fprintf(c.out, "%s -> %s (%d bytes, %d msec)\n", m, dst, n, time.Since(start).Milliseconds())
	}
	return copied, errors.Join(errs...)
}

// bench creates a sizeMB synthetic file in dir, copies it sequentially and in
// parallel, reports both times, verifies the lengths, and removes the files.
func (c *copier) bench(dir string, sizeMB int) error {
	if sizeMB <= 0 {
		return fmt.Errorf("bench size must be > 0, got %d", sizeMB)
	}
	work, err := os.MkdirTemp(dir, "loopchat-bench-")
	if err != nil {
		return fmt.Errorf("creating bench directory: %w", err)
	}
	defer os.RemoveAll(work)

	src := filepath.Join(work, "source.bin")
	size := int64(sizeMB) << 20
	if err := fileio.CreateFile(src, size); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Source: %s (%d bytes)\n", src, size)

	start := time.Now()
	if _, err := fileio.CopySequential(src, filepath.Join(work, "sequential.bin")); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sequential elapsed time: %d msec\n", time.Since(start).Milliseconds())

	parallel := filepath.Join(work, "parallel.bin")
	start = time.Now()
	if _, err := c.copyFile(src, parallel); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Parallel elapsed time: %d msec (%d parts)\n",
		time.Since(start).Milliseconds(), fileio.PartsFor(size, c.chunkSize, c.workers))

	fmt.Fprintln(c.out, "File copied successfully")
	return nil
}

// sameLength fails with the byte difference when dst is not as long as src.
func sameLength(src, dst string) error {
	s, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	d, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if diff := s.Size() - d.Size(); diff != 0 {
		return fmt.Errorf("file difference: %dB", diff)
	}
	return nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", app.DefaultDataDir(), "Data directory for config and logs")
	src := flag.String("src", "", "Source file or glob pattern (supports **)")
	dest := flag.String("dest", ".", "Destination directory")
	workers := flag.Int("workers", 0, "Worker pool size (overrides copy.workers)")
	benchMB := flag.Int("bench", 0, "Benchmark with a synthetic file of this many MiB instead of copying")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Version())
		return
	}
	if *src == "" && *benchMB == 0 {
		fmt.Fprintln(os.Stderr, "usage: loopchat-copy -src PATTERN [-dest DIR] | -bench SIZE_MB")
		flag.PrintDefaults()
		os.Exit(2)
	}

	env, err := app.Setup("copy", *dataDir)
	if err != nil {
		app.Fatal("setup", err)
	}
	defer env.Close()

	cfg := env.Config
	if *workers != 0 {
		cfg.Copy.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		app.Fatal("flags", err)
	}

	p, err := pool.New(cfg.Copy.Workers)
	if err != nil {
		app.Fatal("worker pool", err)
	}
	defer p.Close()

	c := &copier{
		exec:      p,
		workers:   cfg.Copy.Workers,
		chunkSize: int64(cfg.Copy.ChunkSizeKB) << 10,
		out:       os.Stdout,
		logger:    env.Logger,
	}

	if *benchMB != 0 {
		if err := c.bench(*dest, *benchMB); err != nil {
			p.Close()
			app.Fatal("bench", err)
		}
		return
	}

	n, err := c.copyGlob(*src, *dest)
	if err != nil {
		p.Close()
		app.Fatal(fmt.Sprintf("copy (%d succeeded)", n), err)
	}
	slog.Info("copy finished", "files", n)
}
