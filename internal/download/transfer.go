package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
	"github.com/vfaronov/httpheader"

	"github.com/tilawa-app/tilawa/internal/netx"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// PartSuffix marks a file that is still being transferred.
const PartSuffix = ".part"

const (
	copyBufferSize = 32 * 1024
	sniffLen       = 261 // filetype only inspects the first 261 bytes
)

// ErrNotAudio is returned when a downloaded payload is not recognizable audio.
var ErrNotAudio = errors.New("downloaded file is not audio")

// ProgressFunc receives bytes written so far and the expected total (0 when
// unknown) for one file.
type ProgressFunc func(written, expected int64)

// Transferer moves one remote file to dest on the offline filesystem.
type Transferer interface {
	Transfer(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error)
}

// HTTPTransfer downloads over HTTP into a part file, resuming with a Range
// request when a previous attempt left bytes behind.
type HTTPTransfer struct {
	fs        afero.Fs
	client    *http.Client
	exec      *netx.Executor
	userAgent string
}

// NewHTTPTransfer returns an HTTPTransfer writing into fs.
func NewHTTPTransfer(fs afero.Fs, client *http.Client, exec *netx.Executor, userAgent string) *HTTPTransfer {
	if client == nil {
		client = http.DefaultClient
	}
	if exec == nil {
		exec = netx.NewExecutor(netx.DefaultRetryOptions())
	}
	return &HTTPTransfer{fs: fs, client: client, exec: exec, userAgent: userAgent}
}

// Transfer implements Transferer. On success dest holds the complete file and
// no part file remains.
func (t *HTTPTransfer) Transfer(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	start := time.Now()
	workingPath := dest + PartSuffix

	var written int64
	err := t.exec.Execute(ctx, func(ctx context.Context) error {
		n, err := t.attempt(ctx, url, workingPath, progress)
		written = n
		return err
	})
	if err != nil {
		return written, err
	}

	if err := t.verify(workingPath); err != nil {
		_ = t.fs.Remove(workingPath)
		return 0, err
	}

	if err := t.fs.Rename(workingPath, dest); err != nil {
		// Fallback: copy if rename fails (cross-device)
		if copyErr := copyFile(t.fs, workingPath, dest); copyErr != nil {
			return written, fmt.Errorf("failed to finalize file: %w", copyErr)
		}
		_ = t.fs.Remove(workingPath)
	}

	elapsed := time.Since(start)
	speed := float64(written) / max(elapsed.Seconds(), 0.001)
	utils.Debug("Downloaded %s in %s (%s/s)",
		dest,
		elapsed.Round(time.Millisecond),
		utils.ConvertBytesToHumanReadable(int64(speed)),
	)
	return written, nil
}

// attempt makes one request, appending to workingPath when the server honours
// the Range header.
func (t *HTTPTransfer) attempt(ctx context.Context, url, workingPath string, progress ProgressFunc) (int64, error) {
	var offset int64
	if info, err := t.fs.Stat(workingPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, netx.Permanent(fmt.Errorf("build request: %w", err))
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return offset, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		flags |= os.O_APPEND
		utils.Debug("Resuming %s at %d bytes", url, offset)
	case resp.StatusCode == http.StatusOK:
		// Server ignored the range; start over.
		flags |= os.O_TRUNC
		offset = 0
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_ = t.fs.Remove(workingPath)
		return 0, fmt.Errorf("range not satisfiable for %s, restarting", url)
	default:
		return offset, &netx.StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			RetryAfter: httpheader.RetryAfter(resp.Header),
		}
	}

	expected := int64(-1)
	if resp.ContentLength >= 0 {
		expected = offset + resp.ContentLength
	}

	out, err := t.fs.OpenFile(workingPath, flags, 0o644)
	if err != nil {
		return offset, netx.Permanent(fmt.Errorf("open %s: %w", workingPath, err))
	}
	defer func() { _ = out.Close() }()

	written := offset
	report := func() {
		if progress != nil {
			progress(written, max(expected, 0))
		}
	}
	report()

	buf := make([]byte, copyBufferSize)
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			nw, writeErr := out.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
				report()
			}
			if writeErr != nil {
				return written, netx.Permanent(fmt.Errorf("write error: %w", writeErr))
			}
			if nr != nw {
				return written, netx.Permanent(io.ErrShortWrite)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return written, fmt.Errorf("read error: %w", readErr)
		}
	}

	if expected >= 0 && written < expected {
		return written, fmt.Errorf("short body: got %d of %d bytes: %w", written, expected, io.ErrUnexpectedEOF)
	}
	if err := out.Sync(); err != nil {
		return written, fmt.Errorf("sync error: %w", err)
	}
	return written, nil
}

// verify sniffs the head of the part file and rejects non-audio payloads.
func (t *HTTPTransfer) verify(workingPath string) error {
	f, err := t.fs.Open(workingPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	if !filetype.IsAudio(head[:n]) {
		return ErrNotAudio
	}
	return nil
}

// copyFile copies a file from src to dst (fallback when rename fails)
func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
