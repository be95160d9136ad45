package filecopier

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// copyChunkSize is the read buffer for streaming copies. 8 KiB keeps the
// progress display fine-grained even for small files.
const copyChunkSize = 8 * 1024

// ProgressFunc receives the cumulative byte count after each copied chunk.
// Reporting is observational only and must never affect the copy itself.
type ProgressFunc func(copied, total int64)

// CopyError reports a failed copy of a single file. Failures are isolated to
// the file: the watch session keeps running after one.
type CopyError struct {
	File string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copying %s: %v", e.File, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// CopyFile streams src to dst in fixed-size chunks, invoking progress after
// each chunk, then propagates the source's permission bits and modification
// time onto the destination. The destination directory tree is created if it
// does not exist. On error a partial file may remain at dst; there is no
// temp-file staging, the next modification event simply overwrites it.
func CopyFile(src, dst string, progress ProgressFunc) (int64, error) {
	name := filepath.Base(src)

	info, err := os.Stat(src)
	if err != nil {
		return 0, &CopyError{File: name, Err: err}
	}
	total := info.Size()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, &CopyError{File: name, Err: err}
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, &CopyError{File: name, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, &CopyError{File: name, Err: err}
	}

	var copied int64
	buf := make([]byte, copyChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return copied, &CopyError{File: name, Err: werr}
			}
			copied += int64(n)
			if progress != nil {
				progress(copied, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return copied, &CopyError{File: name, Err: rerr}
		}
	}

	if err := out.Close(); err != nil {
		return copied, &CopyError{File: name, Err: err}
	}

	// os.CopyFS-style helpers drop the mtime, so metadata is propagated
	// explicitly.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return copied, &CopyError{File: name, Err: err}
	}
	if err := os.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		return copied, &CopyError{File: name, Err: err}
	}

	return copied, nil
}
