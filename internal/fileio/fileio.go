// Package fileio holds the file helpers behind loopchat-copy: synthetic file
// creation, whole-file reads, and a range copier that runs on the worker pool.
package fileio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
)

// FillByte is the byte [CreateFile] writes.
const FillByte = 's'

// ///////////////////////////////////////////////
// Create / Read
// ///////////////////////////////////////////////

// CreateFile creates (or truncates) name and fills it with size copies of
// [FillByte].
func CreateFile(name string, size int64) error {
	if size < 0 {
		return fmt.Errorf("creating %s: negative size %d", name, size)
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64<<10)
	chunk := bytes.Repeat([]byte{FillByte}, 64<<10)
	for remaining := size; remaining > 0; {
		n := min(remaining, int64(len(chunk)))
		if _, err := w.Write(chunk[:n]); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		remaining -= n
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return f.Close()
}

// ReadFile returns the full contents of name.
func ReadFile(name string) ([]byte, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return b, nil
}

// CopySequential copies src to dst in a single pass and returns the number
// of bytes copied.
func CopySequential(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("creating destination: %w", err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("copying %s: %w", src, err)
	}
	return n, out.Close()
}
