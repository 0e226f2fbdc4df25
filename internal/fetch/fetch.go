// Package fetch loads wall photos from URLs, data URLs and local files.
package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// register decoders beyond the ones imaging pulls in
	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes caps how much of a remote image is read.
const DefaultMaxBytes = 20 << 20

// ErrTooLarge is returned when an image is bigger than the loader's limit.
var ErrTooLarge = errors.New("image too large")

// Loader resolves image references.
type Loader struct {
	client   *http.Client
	maxBytes int64
}

// NewLoader returns a Loader. A nil client uses http.DefaultClient.
func NewLoader(client *http.Client, maxBytes int64) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{client: client, maxBytes: maxBytes}
}

// Load resolves ref, which may be an http(s) URL, a base64 data URL or a file path.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return nil, errors.New("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		return l.loadDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.loadURL(ctx, ref)
	default:
		return l.loadFile(ref)
	}
}

// Decode reads one image from r, applying its EXIF orientation.
func (l *Loader) Decode(r io.Reader) (image.Image, error) {
	raw, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	if int64(len(raw)) > l.maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "more than %d bytes", l.maxBytes)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

func (l *Loader) loadURL(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("download image: status code %d, body: %s", resp.StatusCode, body)
	}
	if resp.ContentLength > l.maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "%d bytes", resp.ContentLength)
	}
	return l.Decode(resp.Body)
}

func (l *Loader) loadDataURL(ref string) (image.Image, error) {
	header, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return nil, errors.New("malformed data URL")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("data URL must be base64 encoded")
	}
	return l.Decode(base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload)))
}

func (l *Loader) loadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}
	defer f.Close()
	return l.Decode(f)
}
