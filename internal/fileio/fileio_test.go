// Tests for the file helpers: synthetic file creation, range splitting, and
// sequential and pool-driven copies.
package fileio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/loopchat/internal/pool"
)

func quietPool(t *testing.T, size int) *pool.Pool {
	t.Helper()
	p := pool.MustNew(size, pool.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { p.Close() })
	return p
}

// patterned writes a file whose bytes encode their own offset, so a
// misplaced range is detected.
func patterned(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return data
}

// ///////////////////////////////////////////////
// Create / Read
// ///////////////////////////////////////////////

func TestCreateAndReadFile(t *testing.T) {
	for _, size := range []int64{0, 1, 1000, 200 << 10} {
		path := filepath.Join(t.TempDir(), "synthetic")
		require.NoError(t, CreateFile(path, size))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, got, int(size))
		assert.Equal(t, bytes.Repeat([]byte{FillByte}, int(size)), got)
	}
}

func TestCreateFile_Errors(t *testing.T) {
	assert.Error(t, CreateFile(filepath.Join(t.TempDir(), "neg"), -1))
	assert.Error(t, CreateFile(filepath.Join(t.TempDir(), "missing", "f"), 10))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// ///////////////////////////////////////////////
// Split
// ///////////////////////////////////////////////

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		size  int64
		parts int
		want  []Range
	}{
		{"even", 100, 4, []Range{{0, 25}, {25, 25}, {50, 25}, {75, 25}}},
		{"remainder on last", 10, 3, []Range{{0, 3}, {3, 3}, {6, 4}}},
		{"one part", 7, 1, []Range{{0, 7}}},
		{"more parts than bytes", 2, 5, []Range{{0, 1}, {1, 1}}},
		{"empty file", 0, 4, nil},
		{"zero parts", 10, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.size, tt.parts)
			assert.Equal(t, tt.want, got)

			var total int64
			for _, r := range got {
				total += r.Length
			}
			if tt.want != nil {
				assert.Equal(t, tt.size, total)
			}
		})
	}
}

func TestPartsFor(t *testing.T) {
	assert.Equal(t, 4, PartsFor(1000, 0, 4))
	assert.Equal(t, 1, PartsFor(1000, 0, 0))
	assert.Equal(t, 10, PartsFor(1000, 100, 4))
	assert.Equal(t, 11, PartsFor(1001, 100, 4))
	assert.Equal(t, 1, PartsFor(0, 100, 4))
}

// ///////////////////////////////////////////////
// Copies
// ///////////////////////////////////////////////

func TestCopySequential(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	want := patterned(t, src, 4097)

	n, err := CopySequential(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCopyParallel(t *testing.T) {
	for _, parts := range []int{1, 3, 8, 64} {
		dir := t.TempDir()
		src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
		want := patterned(t, src, 3*maxPartBuffer+17)

		require.NoError(t, CopyParallel(quietPool(t, 4), src, dst, parts))

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), "parts=%d: copy differs", parts)
	}
}

func TestCopyParallel_PoolReusable(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	want := patterned(t, src, 1000)
	p := quietPool(t, 2)

	for _, name := range []string{"a", "b"} {
		dst := filepath.Join(dir, name)
		require.NoError(t, CopyParallel(p, src, dst, 5))
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 2, p.Live())
}

func TestCopyParallel_EmptySource(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	require.NoError(t, CreateFile(src, 0))

	require.NoError(t, CopyParallel(quietPool(t, 2), src, dst, 4))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestCopyParallel_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyParallel(quietPool(t, 1), filepath.Join(dir, "nope"), filepath.Join(dir, "dst"), 2)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyParallel_ClosedPool(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	patterned(t, src, 100)

	p := quietPool(t, 1)
	p.Join()

	err := CopyParallel(p, src, filepath.Join(dir, "dst"), 4)
	assert.ErrorIs(t, err, pool.ErrClosed)
}

func TestCopyPart_RecordsError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	patterned(t, src, 10)
	dst, err := CreateShared(filepath.Join(dir, "dst"), 10)
	require.NoError(t, err)
	defer dst.Close()

	var errs Errors
	done := false
	CopyPart{Src: src, Dst: dst, Range: Range{Start: 5, Length: 50}, Errs: &errs, Done: func() { done = true }}.Run()

	assert.True(t, done)
	assert.True(t, errors.Is(errs.Err(), io.EOF), "reading past the end should surface io.EOF, got %v", errs.Err())
}
