package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"tools.zach/dev/loopchat/internal/pool"
)

// maxPartBuffer bounds the memory a single [CopyPart] holds at once.
const maxPartBuffer = 1 << 20

// ///////////////////////////////////////////////
// Shared Destination
// ///////////////////////////////////////////////

// SharedFile is a destination file written by several copy jobs. Each write
// is a seek followed by a write under one mutex, so concurrent jobs never
// interleave their positioning.
type SharedFile struct {
	mu sync.Mutex
	f  *os.File
}

// CreateShared creates (or truncates) name and extends it to size bytes.
func CreateShared(name string, size int64) (*SharedFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s: %w", name, err)
	}
	return &SharedFile{f: f}, nil
}

// WriteAt writes p at offset off.
func (s *SharedFile) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.f.Write(p)
}

// Close syncs and closes the file.
func (s *SharedFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("syncing %s: %w", s.f.Name(), err)
	}
	return s.f.Close()
}

// ///////////////////////////////////////////////
// Ranges
// ///////////////////////////////////////////////

// Range is a byte range of a file.
type Range struct {
	Start  int64
	Length int64
}

// Split divides size bytes into parts contiguous ranges. The last range takes
// the remainder. Empty ranges are omitted, so fewer than parts ranges come
// back when size < parts.
func Split(size int64, parts int) []Range {
	if size <= 0 || parts <= 0 {
		return nil
	}
	if int64(parts) > size {
		parts = int(size)
	}
	step := size / int64(parts)
	ranges := make([]Range, parts)
	for i := range ranges {
		ranges[i] = Range{Start: int64(i) * step, Length: step}
	}
	ranges[parts-1].Length = size - ranges[parts-1].Start
	return ranges
}

// PartsFor returns how many ranges to split size into: one per chunkSize
// bytes when chunkSize > 0, otherwise one per worker.
func PartsFor(size, chunkSize int64, workers int) int {
	if chunkSize <= 0 {
		return max(workers, 1)
	}
	return int(max((size+chunkSize-1)/chunkSize, 1))
}

// ///////////////////////////////////////////////
// Copy Jobs
// ///////////////////////////////////////////////

// Errors collects failures from concurrently running jobs.
type Errors struct {
	mu   sync.Mutex
	errs []error
}

// Add records err if it is non-nil.
func (e *Errors) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

// Err joins every recorded error, or returns nil.
func (e *Errors) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}

// CopyPart copies one range of Src into the same offsets of Dst. It
// implements [pool.Job].
type CopyPart struct {
	Src string
	Dst *SharedFile
	Range
	// Errs receives the job's error, if any.
	Errs *Errors
	// Done, if set, is called when the job finishes.
	Done func()
}

// Run implements [pool.Job].
func (c CopyPart) Run() {
	if c.Done != nil {
		defer c.Done()
	}
	if err := c.copy(); err != nil && c.Errs != nil {
		c.Errs.Add(fmt.Errorf("copying bytes %d-%d: %w", c.Start, c.Start+c.Length, err))
	}
}

func (c CopyPart) copy() error {
	src, err := os.Open(c.Src)
	if err != nil {
		return err
	}
	defer src.Close()

	buf := make([]byte, min(c.Length, maxPartBuffer))
	for off, end := c.Start, c.Start+c.Length; off < end; {
		n := min(int64(len(buf)), end-off)
		if _, err := src.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if _, err := c.Dst.WriteAt(buf[:n], off); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// Executor queues jobs. [*pool.Pool] satisfies it.
type Executor interface {
	Execute(job pool.Job) error
}

// CopyParallel copies src to dst as parts concurrent [CopyPart] jobs on exec
// and waits for all of them. The pool stays usable afterwards.
func CopyParallel(exec Executor, src, dst string, parts int) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	out, err := CreateShared(dst, info.Size())
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		errs Errors
	)
	for _, r := range Split(info.Size(), parts) {
		wg.Add(1)
		job := CopyPart{Src: src, Dst: out, Range: r, Errs: &errs, Done: wg.Done}
		if err := exec.Execute(job); err != nil {
			wg.Done()
			errs.Add(fmt.Errorf("queueing copy job: %w", err))
			break
		}
	}
	wg.Wait()

	errs.Add(out.Close())
	return errs.Err()
}
