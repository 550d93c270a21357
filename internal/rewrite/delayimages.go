package rewrite

import (
	"strings"

	"github.com/pageboost/pageboost/internal/htmlstream"
	"github.com/pageboost/pageboost/internal/stats"
)

// rewriteImage handles an img or input start tag. Non-candidates go out
// with their raw bytes untouched.
func (p *Pass) rewriteImage(raw []byte) {
	tag, ok := htmlstream.ParseTag(raw)
	if !ok {
		p.out.Write(raw)
		return
	}
	if tag.Name == "input" {
		t := tag.Attr("type")
		if t == nil || !strings.EqualFold(t.Val, "image") {
			p.out.Write(raw)
			return
		}
	}
	src := tag.Attr("src")
	if src == nil || !src.HasValue || src.Val == "" ||
		strings.HasPrefix(src.Val, "data:") ||
		tag.HasAttr(HighResSrcAttr) || tag.HasAttr(LazySrcAttr) {
		p.out.Write(raw)
		return
	}
	p.imageSeen = true
	url := src.Val

	if p.experimental {
		p.rewriteExperimental(raw, tag, url)
		return
	}

	res, haveLowRes := p.r.previews.LowRes(p.ctx, p.resolveURL(url), p.class)

	if p.mapMode {
		// Repeats of an already-inlined URL reuse the map entry, so
		// only distinct URLs count against the inline cap.
		repeat := p.inlinedURLs[url]
		overCap := p.r.opts.MaxInlinedPreviewImagesIndex != -1 &&
			p.inlineCount >= p.r.opts.MaxInlinedPreviewImagesIndex
		if !haveLowRes || (overCap && !repeat) {
			p.passOver(raw, tag)
			return
		}
		tag.RenameAttr("src", HighResSrcAttr)
		if !repeat {
			p.inlinedURLs[url] = true
			p.pendingNew = append(p.pendingNew, inlineEntry{url: url, dataURI: res.DataURI})
			p.inlineCount++
		}
		p.out.WriteString(tag.String())
		p.recordImage(true, res.Size)
		p.recordApplied(stats.IDDelayImages, true)
		return
	}

	if !haveLowRes {
		p.passOver(raw, tag)
		return
	}
	tag.RenameAttr("src", HighResSrcAttr)
	tag.SetAttr("src", res.DataURI)
	p.out.WriteString(tag.String())
	// The swap runtime rides directly behind the first inlined element
	// so it is live before anything else in the window runs.
	if !p.delayRuntimeSent {
		p.out.WriteString(delayRuntimeScript(p.r.scripts.DelayImagesJS(), p.trigger))
		p.delayRuntimeSent = true
	}
	p.recordImage(true, res.Size)
	p.recordApplied(stats.IDDelayImages, true)
}

// rewriteExperimental applies the onload based variant: no scripts at
// all, the element swaps itself. Elements with an author onload handler
// are left alone.
func (p *Pass) rewriteExperimental(raw []byte, tag htmlstream.Tag, url string) {
	if tag.HasAttr("onload") {
		p.out.Write(raw)
		p.recordImage(false, 0)
		return
	}
	res, ok := p.r.previews.LowRes(p.ctx, p.resolveURL(url), p.class)
	if !ok {
		p.out.Write(raw)
		p.recordImage(false, 0)
		return
	}
	tag.RenameAttr("src", HighResSrcAttr)
	tag.SetAttr("src", res.DataURI)
	tag.SetAttr("onload", OnloadFunction)
	p.out.WriteString(tag.String())
	p.recordImage(true, res.Size)
	p.recordApplied(stats.IDDelayImages, true)
}

// passOver hands a candidate the delay rewriter will not inline to the
// lazyload rewriter, or leaves it untouched when that is off.
func (p *Pass) passOver(raw []byte, tag htmlstream.Tag) {
	if p.r.opts.LazyloadImages && tag.Name == "img" {
		p.emitPending()
		if !p.lazyRuntimeSent {
			p.out.WriteString(lazyloadRuntimeScript(p.r.scripts.LazyloadImagesJS()))
			p.lazyRuntimeSent = true
		}
		tag.RenameAttr("src", LazySrcAttr)
		tag.SetAttr("src", BlankImageSrc)
		tag.SetAttr("onload", ImageOnloadCode)
		p.out.WriteString(tag.String())
		p.recordImage(false, 0)
		p.recordApplied(stats.IDLazyload, false)
		return
	}
	p.out.Write(raw)
	p.recordImage(false, 0)
}

func (p *Pass) recordImage(inserted bool, size int) {
	p.recorder.AddRewriterInfo(stats.RewriterInfo{
		ID:           stats.IDImageCritical,
		Status:       stats.StatusNotApplied,
		IsCritical:   true,
		HasImageInfo: true,
		Image: stats.ImageInfo{
			IsLowResSrcInserted: inserted,
			LowResSize:          size,
		},
	})
}

func (p *Pass) recordApplied(id string, inlined bool) {
	p.recorder.AddRewriterInfo(stats.RewriterInfo{
		ID:        id,
		Status:    stats.StatusAppliedOK,
		IsInlined: inlined,
	})
}
