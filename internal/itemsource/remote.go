package itemsource

import (
	"context"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/fetcher"
	"github.com/sells-group/spirits-cli/internal/model"
)

// IsURL reports whether src names an http(s) or ftp resource.
func IsURL(src string) bool {
	lower := strings.ToLower(src)
	for _, prefix := range []string{"http://", "https://", "ftp://"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ReadURL downloads rawURL into a temporary file and reads it with Read. The
// file type comes from the URL path's extension.
func ReadURL(ctx context.Context, f fetcher.Fetcher, rawURL string) ([]model.WorkItem, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "itemsource: parse url")
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".csv", ".xlsx", ".json", ".yaml", ".yml":
	default:
		return nil, eris.Errorf("itemsource: unsupported file type %q", ext)
	}

	tmp, err := os.CreateTemp("", "spirits-items-*"+ext)
	if err != nil {
		return nil, eris.Wrap(err, "itemsource: create temp file")
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(name) //nolint:errcheck

	if _, err := f.DownloadToFile(ctx, rawURL, name); err != nil {
		return nil, eris.Wrap(err, "itemsource: download")
	}
	return Read(ctx, name)
}
