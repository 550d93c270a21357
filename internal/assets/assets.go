// Package assets carries the client-side runtimes injected into rewritten
// pages, in a readable debug variant and a compiled variant, plus the
// static files served from the handler path.
package assets

import (
	"embed"
	"encoding/base64"
	"fmt"
)

//go:embed js/*.js
var jsFiles embed.FS

// HandlerPrefix is the URL prefix the proxy reserves for its own assets.
const HandlerPrefix = "/psajs/"

const (
	BlankImagePath = HandlerPrefix + "1.0.gif"
	JsDeferPath    = HandlerPrefix + "js_defer.0.js"
)

// Bootstrap inlined before </head> when javascript deferral is on. It must
// run before any queued script, so it is never itself deferred.
const JsDisableCode = "window.pagespeed=window.pagespeed||{};" +
	"window.pagespeed.deferJsQueued=true;"

// 1x1 transparent GIF used as the lazyload placeholder.
var blankGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

func BlankGIF() []byte {
	return blankGIF
}

type Provider struct {
	debug bool
}

func NewProvider(debug bool) *Provider {
	return &Provider{debug: debug}
}

func (p *Provider) load(name string) string {
	if !p.debug {
		name += "_opt"
	}
	b, err := jsFiles.ReadFile(fmt.Sprintf("js/%s.js", name))
	if err != nil {
		// Embedded files are fixed at build time, a miss is a bug.
		panic(err)
	}
	return string(b)
}

func (p *Provider) DelayImagesJS() string {
	return p.load("delay_images")
}

func (p *Provider) DelayImagesInlineJS() string {
	return p.load("delay_images_inline")
}

func (p *Provider) LazyloadImagesJS() string {
	return p.load("lazyload_images")
}

// JsDeferJS is the external defer runtime served at JsDeferPath.
func (p *Provider) JsDeferJS() string {
	return p.load("js_defer")
}
