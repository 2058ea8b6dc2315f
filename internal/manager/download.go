package manager

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"idgaf/internal/fault"
)

// DownloadOptions tunes Download behavior.
type DownloadOptions struct {
	// MaxRetries is the number of retry attempts after the first failure.
	MaxRetries int
	// BaseDelay is the backoff base; delay doubles per attempt.
	BaseDelay time.Duration
	// Checksum, when set, is the expected hex SHA-256 of the payload.
	Checksum string
	// Progress, when set, receives (bytesRead, totalBytes). totalBytes is
	// -1 when the server sends no Content-Length.
	Progress func(read, total int64)
}

// Download fetches a model file into the models directory and returns its
// local path. Transient transport failures are retried with exponential
// backoff; a checksum mismatch discards the file and fails without retry.
// The payload lands under a temporary name and is renamed only after
// validation, so a partial download never shadows a good file.
func (m *Manager) Download(ctx context.Context, rawURL string, opts DownloadOptions) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fault.New(fault.KindInvalidInput, "unsupported model URL %q", rawURL)
	}
	name := filepath.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fault.New(fault.KindInvalidInput, "model URL %q has no file name", rawURL)
	}
	dest := filepath.Join(m.dir, name)
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fault.Wrap(fault.KindLoadFailure, err, "create models dir")
	}

	base := opts.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	err = fault.Retry(ctx, opts.MaxRetries, base, func(ctx context.Context) error {
		return m.fetchOnce(ctx, rawURL, dest, opts)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (m *Manager) fetchOnce(ctx context.Context, rawURL, dest string, opts DownloadOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fault.Wrap(fault.KindInvalidInput, err, "build request")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindTransport, err, "fetch model")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		kind := fault.KindTransport
		if resp.StatusCode == http.StatusNotFound {
			// A 404 will not heal on retry.
			kind = fault.KindUnsupported
		}
		return fault.New(kind, "fetch model: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(m.dir, ".download-*")
	if err != nil {
		return fault.Wrap(fault.KindLoadFailure, err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var reader io.Reader = resp.Body
	if opts.Progress != nil {
		reader = &progressReader{r: resp.Body, total: resp.ContentLength, fn: opts.Progress}
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fault.Wrap(fault.KindTransport, err, "read model body")
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.KindLoadFailure, err, "flush temp file")
	}
	if opts.Checksum != "" {
		if err := Verify(tmpName, opts.Checksum); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fault.Wrap(fault.KindLoadFailure, err, "install model file")
	}
	return nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    func(read, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}
