// Package rewrite implements the delay-images HTML rewriter: inline low
// resolution previews, deferred high resolution swap, and the cooperating
// lazyload and javascript deferral rewriters.
package rewrite

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/url"

	"golang.org/x/net/html"

	"github.com/pageboost/pageboost/internal/assets"
	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/htmlstream"
	"github.com/pageboost/pageboost/internal/preview"
	"github.com/pageboost/pageboost/internal/stats"
	"github.com/pageboost/pageboost/internal/useragent"
)

const (
	triggerReplace     = "replaceWithHighRes"
	triggerLazyHighRes = "registerLazyLoadHighRes"
)

type Rewriter struct {
	opts       config.RewriteOptions
	classifier *useragent.Classifier
	previews   *preview.Generator
	scripts    *assets.Provider
}

func New(opts config.RewriteOptions, fetcher preview.Fetcher) *Rewriter {
	return &Rewriter{
		opts:       opts,
		classifier: useragent.New(),
		previews:   preview.NewGenerator(fetcher, opts),
		scripts:    assets.NewProvider(opts.Debug),
	}
}

type inlineEntry struct {
	url     string
	dataURI string
}

// Pass rewrites one document. Write buffers input, Flush rewrites every
// completed window and forwards it, Finish drains the rest. Bytes already
// forwarded are never revisited, so script placement follows the flush
// boundaries the caller chose.
type Pass struct {
	r        *Rewriter
	ctx      context.Context
	docURL   string
	baseURL  *url.URL
	ua       string
	recorder *stats.Recorder
	w        io.Writer

	active        bool
	mapMode       bool
	experimental  bool
	noSwapRuntime bool
	class         useragent.DeviceClass
	trigger       string

	splitter *htmlstream.Splitter
	out      bytes.Buffer
	finished bool

	headSeen         bool
	bodySeen         bool
	inNoscript       bool
	imageSeen        bool
	noscriptInserted bool
	noscriptMark     int

	inlineCount int
	pendingNew  []inlineEntry
	inlinedURLs map[string]bool

	inlineRuntimeSent bool
	delayRuntimeSent  bool
	lazyRuntimeSent   bool
	disableJsSent     bool
}

// NewPass prepares a rewriting pass for one document. An unsupported
// user agent or ImagePreserveURLs turns the pass into a byte-identical
// passthrough.
func (r *Rewriter) NewPass(ctx context.Context, docURL, ua string, recorder *stats.Recorder, w io.Writer) *Pass {
	supported := r.classifier.SupportsDelayImages(ua)
	active := supported && !r.opts.ImagePreserveURLs
	mobileAggressive := r.opts.EnableAggressiveRewritersForMobile && r.classifier.IsMobile(ua)
	mapMode := (r.opts.DeferJavascript && r.opts.LazyloadImages) || mobileAggressive

	trigger := triggerReplace
	if r.opts.LazyloadHighResImages && mobileAggressive {
		trigger = triggerLazyHighRes
	}

	if !supported {
		recorder.SetHTMLStatus(stats.HTMLUnsupported)
	}

	baseURL, err := url.Parse(docURL)
	if err != nil {
		baseURL = nil
	}

	p := &Pass{
		r:             r,
		ctx:           ctx,
		docURL:        docURL,
		baseURL:       baseURL,
		ua:            ua,
		recorder:      recorder,
		w:             w,
		active:        active,
		mapMode:       mapMode,
		experimental:  r.opts.EnableInlinePreviewImagesExperimental && !mapMode,
		noSwapRuntime: r.opts.EnableInlinePreviewImagesExperimental && mapMode && trigger == triggerReplace,
		class:         r.classifier.Class(ua),
		trigger:       trigger,
		splitter:      htmlstream.NewSplitter(),
		noscriptMark:  -1,
		inlinedURLs:   make(map[string]bool),
	}
	slog.Debug("rewrite pass",
		slog.String("doc", docURL),
		slog.Bool("active", active),
		slog.Bool("map_mode", mapMode),
		slog.String("class", string(p.class)))
	return p
}

func (p *Pass) Active() bool {
	return p.active
}

func (p *Pass) Write(b []byte) (int, error) {
	if !p.active {
		return p.w.Write(b)
	}
	return p.splitter.Write(b)
}

// Flush rewrites the buffered window, if one is complete, and forwards
// it. Inline previews collected in this window get their scripts emitted
// at the window boundary.
func (p *Pass) Flush() error {
	if !p.active {
		return nil
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if w := p.splitter.Window(); w != nil {
		p.processWindow(w)
		p.emitPending()
	}
	return p.flushOut()
}

// Finish drains the remaining input, emits trailing scripts and marks the
// document done. Idempotent.
func (p *Pass) Finish() error {
	if p.finished {
		return nil
	}
	p.finished = true
	if !p.active {
		return nil
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if w := p.splitter.Window(); w != nil {
		p.processWindow(w)
	}
	if tail := p.splitter.Drain(); len(tail) > 0 {
		p.processWindow(tail)
	}
	p.emitPending()
	if p.r.opts.DeferJavascript {
		if !p.disableJsSent {
			p.out.WriteString(jsDisableScript())
			p.disableJsSent = true
		}
		p.out.WriteString(jsDeferLoaderScript())
	}
	err := p.flushOut()
	p.recorder.SetHTMLStatus(stats.HTMLActive)
	return err
}

// flushOut resolves the pending noscript insertion and forwards the
// window output.
func (p *Pass) flushOut() error {
	if p.imageSeen && p.bodySeen && !p.noscriptInserted {
		pos := 0
		if p.noscriptMark >= 0 {
			pos = p.noscriptMark
		}
		block := []byte(noScriptRedirect(p.docURL))
		buf := p.out.Bytes()
		spliced := make([]byte, 0, len(buf)+len(block))
		spliced = append(spliced, buf[:pos]...)
		spliced = append(spliced, block...)
		spliced = append(spliced, buf[pos:]...)
		p.out.Reset()
		p.out.Write(spliced)
		p.noscriptInserted = true
	}
	p.noscriptMark = -1
	if p.out.Len() == 0 {
		return nil
	}
	_, err := p.w.Write(p.out.Bytes())
	p.out.Reset()
	return err
}

func (p *Pass) processWindow(window []byte) {
	z := html.NewTokenizer(bytes.NewReader(window))
	consumed := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		consumed += len(raw)
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			p.handleStartTag(raw)
		case html.EndTagToken:
			p.handleEndTag(raw)
		case html.TextToken:
			if p.inNoscript && !p.imageSeen && containsImageMarkup(raw) {
				p.imageSeen = true
			}
			p.out.Write(raw)
		default:
			p.out.Write(raw)
		}
	}
	// Unterminated tail bytes pass through untouched.
	if consumed < len(window) {
		p.out.Write(window[consumed:])
	}
}

func (p *Pass) handleStartTag(raw []byte) {
	switch tagName(raw) {
	case "img", "input":
		p.rewriteImage(raw)
		return
	case "head":
		p.headSeen = true
	case "body":
		p.out.Write(raw)
		if !p.bodySeen {
			p.bodySeen = true
			p.noscriptMark = p.out.Len()
			// Without a head the deferral bootstrap goes right after
			// the body opens, still ahead of every queued script.
			if p.r.opts.DeferJavascript && !p.headSeen && !p.disableJsSent {
				p.out.WriteString(jsDisableScript())
				p.disableJsSent = true
			}
		}
		return
	case "noscript":
		p.inNoscript = true
	}
	p.out.Write(raw)
}

func (p *Pass) handleEndTag(raw []byte) {
	switch tagName(raw) {
	case "noscript":
		p.inNoscript = false
	case "head":
		if p.r.opts.DeferJavascript && !p.disableJsSent {
			p.out.WriteString(jsDisableScript())
			p.disableJsSent = true
		}
	case "body":
		p.emitPending()
		if p.lazyRuntimeSent {
			p.out.WriteString(lazyloadOverrideScript())
		}
	}
	p.out.Write(raw)
}

// emitPending writes the scripts for previews collected since the last
// emission: the inline runtime once, the low-res map, then the high-res
// runtime once followed by bare triggers. No-op outside map mode or when
// nothing new was collected.
func (p *Pass) emitPending() {
	if !p.mapMode || len(p.pendingNew) == 0 {
		return
	}
	if !p.inlineRuntimeSent {
		p.out.WriteString(inlineRuntimeScript(p.r.scripts.DelayImagesInlineJS()))
		p.inlineRuntimeSent = true
	}
	p.out.WriteString(inlineMapScript(p.pendingNew))
	p.pendingNew = p.pendingNew[:0]
	// Under the experimental inline-preview variant the low-res previews
	// stay in place, so the high-res swap runtime never goes out. The
	// lazy high-res trigger still needs it.
	if p.noSwapRuntime {
		return
	}
	if !p.delayRuntimeSent {
		p.out.WriteString(delayRuntimeScript(p.r.scripts.DelayImagesJS(), p.trigger))
		p.delayRuntimeSent = true
	} else {
		p.out.WriteString(delayTriggerScript(p.trigger))
	}
}

// resolveURL makes a src reference absolute against the document URL for
// fetching. Markup keeps the reference as the author wrote it.
func (p *Pass) resolveURL(ref string) string {
	if p.baseURL == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return p.baseURL.ResolveReference(u).String()
}

func tagName(raw []byte) string {
	i := 1
	if i < len(raw) && raw[i] == '/' {
		i++
	}
	start := i
	for i < len(raw) {
		c := raw[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			i++
			continue
		}
		break
	}
	return string(bytes.ToLower(raw[start:i]))
}

// containsImageMarkup scans raw text, such as noscript content, for image
// elements the tokenizer does not surface as tags.
func containsImageMarkup(raw []byte) bool {
	lower := bytes.ToLower(raw)
	return bytes.Contains(lower, []byte("<img")) || bytes.Contains(lower, []byte("<input"))
}
