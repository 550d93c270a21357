// Package preview turns original images into small low resolution
// variants suitable for inlining as data URIs.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/useragent"
)

const (
	// Quality for the inlined JPEG preview. Low on purpose, the high
	// resolution original replaces it after load.
	previewQuality = 10

	// Target width when downscaling for small screens.
	mobileWidth = 320

	// WebP originals up to this size are inlined untouched.
	webpInlineMax = 8192

	cacheSize = 1024
	cacheTTL  = 10 * time.Minute
)

// Result is a generated low resolution preview. Size counts the raw
// payload bytes before base64 expansion.
type Result struct {
	DataURI string
	Size    int
}

type cached struct {
	res Result
	ok  bool
}

// Generator produces and caches low resolution previews. Safe for
// concurrent use.
type Generator struct {
	fetcher Fetcher
	opts    config.RewriteOptions
	cache   *expirable.LRU[string, cached]
}

func NewGenerator(fetcher Fetcher, opts config.RewriteOptions) *Generator {
	return &Generator{
		fetcher: fetcher,
		opts:    opts,
		cache:   expirable.NewLRU[string, cached](cacheSize, nil, cacheTTL),
	}
}

// LowRes returns the inline preview for url, or ok=false when the image
// is not eligible or could not be processed. Results are cached per
// device class, so repeated references inline byte-identical previews.
func (g *Generator) LowRes(ctx context.Context, url string, class useragent.DeviceClass) (Result, bool) {
	key := url + "|" + string(class)
	if c, hit := g.cache.Get(key); hit {
		return c.res, c.ok
	}
	res, ok := g.generate(ctx, url, class)
	g.cache.Add(key, cached{res: res, ok: ok})
	return res, ok
}

func (g *Generator) generate(ctx context.Context, url string, class useragent.DeviceClass) (Result, bool) {
	data, contentType, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		slog.Debug("preview fetch failed", slog.String("url", url), slog.Any("error", err))
		return Result{}, false
	}
	if int64(len(data)) < g.opts.MinImageSizeLowResolutionBytes {
		return Result{}, false
	}
	if max := g.opts.MaxImageSizeLowResolutionBytes; max > 0 && int64(len(data)) > max {
		return Result{}, false
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	isWebP := strings.Contains(contentType, "image/webp")

	if isWebP && len(data) <= webpInlineMax {
		return Result{
			DataURI: dataURI("image/webp", data),
			Size:    len(data),
		}, true
	}

	var img image.Image
	if isWebP {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		slog.Debug("preview decode failed", slog.String("url", url), slog.Any("error", err))
		return Result{}, false
	}

	if class == useragent.DeviceMobile && g.opts.ResizeMobileImages {
		// Sources already at or below the target width gain nothing
		// from a shrunk preview, so no low-res version is produced.
		if img.Bounds().Dx() <= mobileWidth {
			return Result{}, false
		}
		img = downscale(img, mobileWidth)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		slog.Debug("preview encode failed", slog.String("url", url), slog.Any("error", err))
		return Result{}, false
	}
	return Result{
		DataURI: dataURI("image/jpeg", buf.Bytes()),
		Size:    buf.Len(),
	}, true
}

// downscale shrinks img to the target width keeping aspect ratio. Images
// already at or under the target come back unchanged.
func downscale(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() <= width {
		return img
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func dataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
