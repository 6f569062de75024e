package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/resilience"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// FTPFetcher downloads item files from FTP servers. Credentials come from the
// URL's userinfo; without them the fetcher logs in anonymously.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("fetcher", "ftp")
	}
	return &FTPFetcher{opts: opts}
}

type ftpTarget struct {
	addr string
	path string
	user string
	pass string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("fetcher: no file path in %q", rawURL)
	}

	t := ftpTarget{addr: u.Host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if _, _, err := net.SplitHostPort(t.addr); err != nil {
		t.addr = net.JoinHostPort(t.addr, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	return t, nil
}

// ftpBody closes the transfer and the control connection together.
type ftpBody struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Read(p []byte) (int, error) {
	return b.resp.Read(p)
}

func (b *ftpBody) Close() error {
	respErr := b.resp.Close()
	quitErr := b.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "fetcher: close ftp transfer")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "fetcher: quit ftp connection")
	}
	return nil
}

// Download retrieves the file named by ftpURL. Dial failures are retried;
// login and missing-file errors are not. The caller must close the returned
// reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("fetcher: ftp connect", zap.String("addr", target.addr), zap.String("path", target.path))

	conn, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (*ftp.ServerConn, error) {
		c, err := ftp.Dial(target.addr, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "fetcher: ftp dial")
			}
			return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: ftp dial"), 0)
		}
		return c, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", ftpURL)
	}

	if err := conn.Login(target.user, target.pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "fetcher: ftp login")
	}
	resp, err := conn.Retr(target.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "fetcher: ftp retrieve %s", target.path)
	}
	return &ftpBody{resp: resp, conn: conn}, nil
}

// DownloadToFile downloads ftpURL to path. Returns bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	return copyToFile(ctx, f, ftpURL, path)
}

// copyToFile streams src's download of rawURL into a new file at path.
func copyToFile(ctx context.Context, src Fetcher, rawURL, path string) (int64, error) {
	body, err := src.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "fetcher: write file")
	}

	zap.L().Debug("fetcher: downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
	return n, nil
}

// SchemeFetcher routes each URL to the fetcher registered for its scheme.
type SchemeFetcher struct {
	byScheme map[string]Fetcher
}

// NewSchemeFetcher returns a SchemeFetcher serving http, https and ftp URLs.
func NewSchemeFetcher(httpFetcher *HTTPFetcher, ftpFetcher *FTPFetcher) *SchemeFetcher {
	return &SchemeFetcher{byScheme: map[string]Fetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
		"ftp":   ftpFetcher,
	}}
}

func (s *SchemeFetcher) route(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	f, ok := s.byScheme[u.Scheme]
	if !ok {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	return f, nil
}

// Download implements Fetcher.
func (s *SchemeFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (s *SchemeFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
