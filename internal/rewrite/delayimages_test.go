package rewrite

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pageboost/pageboost/internal/assets"
	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/preview"
	"github.com/pageboost/pageboost/internal/stats"
	"github.com/pageboost/pageboost/internal/useragent"
)

const (
	testDocURL = "http://test.com/text.html"
	img1URL    = "http://test.com/1.jpeg"
	img2URL    = "http://test.com/2.jpeg"

	desktopUA     = "Safari"
	mobileUA      = "Android 4 Mobile Safari"
	unsupportedUA = "unsupported"
)

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 13) % 256),
				B: uint8((x*y + 31) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testFetcher(t *testing.T) *preview.MemoryFetcher {
	t.Helper()
	f := preview.NewMemoryFetcher()
	f.Add(img1URL, "image/jpeg", makeJPEG(t, 640, 480))
	f.Add(img2URL, "image/jpeg", makeJPEG(t, 800, 600))
	return f
}

// lowResFor mirrors what the rewriter under test will inline for url.
func lowResFor(t *testing.T, opts config.RewriteOptions, f preview.Fetcher, url string, class useragent.DeviceClass) preview.Result {
	t.Helper()
	res, ok := preview.NewGenerator(f, opts).LowRes(context.Background(), url, class)
	assert.True(t, ok, "expected a preview for %s", url)
	return res
}

func runPass(t *testing.T, r *Rewriter, ua string, chunks ...string) (string, *stats.Recorder) {
	t.Helper()
	rec := stats.NewRecorder(testDocURL)
	var out bytes.Buffer
	p := r.NewPass(context.Background(), testDocURL, ua, rec, &out)
	for i, c := range chunks {
		_, err := p.Write([]byte(c))
		assert.NoError(t, err)
		if i < len(chunks)-1 {
			assert.NoError(t, p.Flush())
		}
	}
	assert.NoError(t, p.Finish())
	return out.String(), rec
}

func TestInactiveForUnsupportedUserAgent(t *testing.T) {
	doc := `<html><body><img src="` + img1URL + `"/></body></html>`
	r := New(config.DefaultRewriteOptions(), testFetcher(t))

	out, rec := runPass(t, r, unsupportedUA, doc)
	assert.Equal(t, doc, out)
	assert.Equal(t, stats.HTMLUnsupported, rec.HTMLStatus())
	assert.Empty(t, rec.RewriterInfos())
}

func TestInactiveWhenPreservingURLs(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.ImagePreserveURLs = true
	doc := `<html><body><img src="` + img1URL + `"/></body></html>`
	r := New(opts, testFetcher(t))

	out, rec := runPass(t, r, desktopUA, doc)
	assert.Equal(t, doc, out)
	assert.Equal(t, stats.HTMLDisabled, rec.HTMLStatus())
}

func TestInPlaceInline(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	fetcher := testFetcher(t)
	r := New(opts, fetcher)
	res := lowResFor(t, opts, fetcher, img1URL, useragent.DeviceDesktop)
	provider := assets.NewProvider(false)

	out, rec := runPass(t, r, desktopUA,
		`<html><head></head><body><img src="`+img1URL+`"/></body></html>`)

	want := `<html><head></head><body>` + noScriptRedirect(testDocURL) +
		`<img pagespeed_high_res_src="` + img1URL + `" src="` + res.DataURI + `"/>` +
		delayRuntimeScript(provider.DelayImagesJS(), triggerReplace) +
		`</body></html>`
	assert.Equal(t, want, out)
	assert.Equal(t, stats.HTMLActive, rec.HTMLStatus())

	infos := rec.RewriterInfos()
	assert.Len(t, infos, 2)
	assert.Equal(t, stats.IDImageCritical, infos[0].ID)
	assert.True(t, infos[0].Image.IsLowResSrcInserted)
	assert.Equal(t, res.Size, infos[0].Image.LowResSize)
	assert.Equal(t, stats.IDDelayImages, infos[1].ID)
	assert.Equal(t, []string{stats.IDDelayImages}, rec.AppliedRewriters())
}

func TestMapModeWithDeferAndLazyload(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.DeferJavascript = true
	opts.LazyloadImages = true
	fetcher := testFetcher(t)
	r := New(opts, fetcher)
	res := lowResFor(t, opts, fetcher, img1URL, useragent.DeviceDesktop)
	provider := assets.NewProvider(false)

	out, _ := runPass(t, r, desktopUA,
		`<html><head></head><body><img src="`+img1URL+`"/></body></html>`)

	want := `<html><head>` + jsDisableScript() + `</head><body>` +
		noScriptRedirect(testDocURL) +
		`<img pagespeed_high_res_src="` + img1URL + `"/>` +
		inlineRuntimeScript(provider.DelayImagesInlineJS()) +
		inlineMapScript([]inlineEntry{{url: img1URL, dataURI: res.DataURI}}) +
		delayRuntimeScript(provider.DelayImagesJS(), triggerReplace) +
		`</body></html>` + jsDeferLoaderScript()
	assert.Equal(t, want, out)
}

func TestMobileAggressiveMapModeAndLazyTrigger(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.LazyloadHighResImages = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, `<img pagespeed_high_res_src="`+img1URL+`"/>`)
	assert.NotContains(t, out, "data:image/jpeg;base64")
	assert.NotContains(t, out, "replaceWithHighRes();")
	assert.Contains(t, out, "pagespeed.delayImages.registerLazyLoadHighRes();")
}

func TestDesktopStaysInPlaceUnderAggressiveFlag(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.LazyloadHighResImages = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, ` src="data:image/jpeg;base64,`)
	assert.Contains(t, out, "pagespeed.delayImages.replaceWithHighRes();")
	assert.NotContains(t, out, "registerLazyLoadHighRes")
}

func TestFlushWindows(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	fetcher := testFetcher(t)
	r := New(opts, fetcher)
	res1 := lowResFor(t, opts, fetcher, img1URL, useragent.DeviceMobile)
	res2 := lowResFor(t, opts, fetcher, img2URL, useragent.DeviceMobile)
	provider := assets.NewProvider(false)

	rec := stats.NewRecorder(testDocURL)
	var out bytes.Buffer
	p := r.NewPass(context.Background(), testDocURL, mobileUA, rec, &out)

	_, err := p.Write([]byte(`<html><body><img src="` + img1URL + `"/>`))
	assert.NoError(t, err)
	assert.NoError(t, p.Flush())

	wantFirst := `<html><body>` + noScriptRedirect(testDocURL) +
		`<img pagespeed_high_res_src="` + img1URL + `"/>` +
		inlineRuntimeScript(provider.DelayImagesInlineJS()) +
		inlineMapScript([]inlineEntry{{url: img1URL, dataURI: res1.DataURI}}) +
		delayRuntimeScript(provider.DelayImagesJS(), triggerReplace)
	assert.Equal(t, wantFirst, out.String())
	out.Reset()

	_, err = p.Write([]byte(`<img src="` + img2URL + `"/></body></html>`))
	assert.NoError(t, err)
	assert.NoError(t, p.Finish())

	wantSecond := `<img pagespeed_high_res_src="` + img2URL + `"/>` +
		inlineMapScript([]inlineEntry{{url: img2URL, dataURI: res2.DataURI}}) +
		delayTriggerScript(triggerReplace) +
		`</body></html>`
	assert.Equal(t, wantSecond, out.String())
}

func TestFlushInsideTagWaitsForCompletion(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	r := New(opts, testFetcher(t))

	rec := stats.NewRecorder(testDocURL)
	var out bytes.Buffer
	p := r.NewPass(context.Background(), testDocURL, desktopUA, rec, &out)

	_, err := p.Write([]byte(`<html><body><img sr`))
	assert.NoError(t, err)
	assert.NoError(t, p.Flush())
	flushed := out.String()
	assert.NotContains(t, flushed, "<img")

	_, err = p.Write([]byte(`c="` + img1URL + `"/></body></html>`))
	assert.NoError(t, err)
	assert.NoError(t, p.Finish())
	assert.Contains(t, out.String(), `pagespeed_high_res_src="`+img1URL+`"`)
}

func TestCanceledContextAbortsPass(t *testing.T) {
	r := New(config.DefaultRewriteOptions(), testFetcher(t))
	ctx, cancel := context.WithCancel(context.Background())
	rec := stats.NewRecorder(testDocURL)
	var out bytes.Buffer
	p := r.NewPass(ctx, testDocURL, desktopUA, rec, &out)

	_, err := p.Write([]byte(`<html><body><img src="` + img1URL + `"/>`))
	assert.NoError(t, err)
	cancel()

	assert.ErrorIs(t, p.Flush(), context.Canceled)
	assert.ErrorIs(t, p.Finish(), context.Canceled)
	assert.Empty(t, out.String())
}

func TestDuplicateURLsInlinedOnce(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/><img src="`+img1URL+`"/></body></html>`)

	assert.Equal(t, 2, strings.Count(out, `<img pagespeed_high_res_src="`+img1URL+`"/>`))
	assert.Equal(t, 1, strings.Count(out, "addLowResImages('"+img1URL+"'"))
}

func TestMaxInlinedPreviewImagesIndex(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.MaxInlinedPreviewImagesIndex = 1
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/><img src="`+img2URL+`"/></body></html>`)

	assert.Contains(t, out, `<img pagespeed_high_res_src="`+img1URL+`"/>`)
	// Over the cap: left untouched.
	assert.Contains(t, out, `<img src="`+img2URL+`"/>`)
	assert.NotContains(t, out, "addLowResImages('"+img2URL+"'")
}

func TestInlineCapCountsDistinctURLs(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.MaxInlinedPreviewImagesIndex = 2
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/><img src="`+img1URL+`"/><img src="`+img2URL+`"/></body></html>`)

	// The repeat of img1 does not burn a cap slot, img2 still fits.
	assert.Equal(t, 2, strings.Count(out, `<img pagespeed_high_res_src="`+img1URL+`"/>`))
	assert.Contains(t, out, `<img pagespeed_high_res_src="`+img2URL+`"/>`)
	assert.Equal(t, 1, strings.Count(out, "addLowResImages('"+img1URL+"'"))
	assert.Equal(t, 1, strings.Count(out, "addLowResImages('"+img2URL+"'"))
}

func TestRepeatAtCapKeepsRename(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.MaxInlinedPreviewImagesIndex = 1
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/><img src="`+img1URL+`"/></body></html>`)

	// The second occurrence already has a map entry, so the rename sticks
	// even with the cap exhausted.
	assert.Equal(t, 2, strings.Count(out, `<img pagespeed_high_res_src="`+img1URL+`"/>`))
	assert.Equal(t, 1, strings.Count(out, "addLowResImages('"+img1URL+"'"))
}

func TestLazyloadDelegation(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.DeferJavascript = true
	opts.LazyloadImages = true
	r := New(opts, testFetcher(t))
	missing := "http://test.com/missing.jpeg"

	out, rec := runPass(t, r, desktopUA,
		`<html><head></head><body><img src="`+missing+`"/></body></html>`)

	lazyTag := `<img pagespeed_lazy_src="` + missing + `" src="` + BlankImageSrc +
		`" onload="` + ImageOnloadCode + `"/>`
	assert.Contains(t, out, lazyTag)

	runtimePos := strings.Index(out, "pagespeed.lazyLoadInit(false,")
	tagPos := strings.Index(out, lazyTag)
	overridePos := strings.Index(out, "overrideAttributeFunctions();")
	bodyEndPos := strings.Index(out, "</body>")
	assert.True(t, runtimePos >= 0 && runtimePos < tagPos, "runtime before first lazy image")
	assert.True(t, overridePos > tagPos && overridePos < bodyEndPos, "override before </body>")

	assert.Equal(t, []string{stats.IDLazyload}, rec.AppliedRewriters())
}

func TestMultipleBodies(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/></body><body><img src="`+img2URL+`"/></body></html>`)

	// The runtimes go out once, the second body gets a bare trigger.
	assert.Equal(t, 1, strings.Count(out, delayImagesSuffix))
	assert.Equal(t, 1, strings.Count(out, delayImagesInlineSuffix))
	assert.Equal(t, 1, strings.Count(out, delayTriggerScript(triggerReplace)))
	assert.Equal(t, 2, strings.Count(out, "replaceWithLowRes();"))
}

func TestMinImageSizeThreshold(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.MinImageSizeLowResolutionBytes = 1 << 20
	r := New(opts, testFetcher(t))

	out, rec := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, `<img src="`+img1URL+`"/>`)
	assert.NotContains(t, out, "text/javascript")
	infos := rec.RewriterInfos()
	assert.Len(t, infos, 1)
	assert.False(t, infos[0].Image.IsLowResSrcInserted)
}

func TestMaxImageSizeThreshold(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.MaxImageSizeLowResolutionBytes = 100
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, `<img src="`+img1URL+`"/>`)
	assert.NotContains(t, out, "pagespeed_high_res_src")
}

func TestExperimentalVariant(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableInlinePreviewImagesExperimental = true
	fetcher := testFetcher(t)
	r := New(opts, fetcher)
	res := lowResFor(t, opts, fetcher, img1URL, useragent.DeviceDesktop)

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	want := `<img pagespeed_high_res_src="` + img1URL + `" src="` + res.DataURI +
		`" onload="` + OnloadFunction + `"/>`
	assert.Contains(t, out, want)
	// The element swaps itself, no scripts at all.
	assert.NotContains(t, out, "<script")
}

func TestExperimentalSkipsAuthorOnload(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableInlinePreviewImagesExperimental = true
	r := New(opts, testFetcher(t))
	in := `<img src="` + img1URL + `" onload="f();"/>`

	out, _ := runPass(t, r, desktopUA, `<html><body>`+in+`</body></html>`)
	assert.Contains(t, out, in)
	assert.NotContains(t, out, "pagespeed_high_res_src")
}

func TestExperimentalIgnoredInMapMode(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableInlinePreviewImagesExperimental = true
	opts.DeferJavascript = true
	opts.LazyloadImages = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, `<img pagespeed_high_res_src="`+img1URL+`"/>`)
	assert.NotContains(t, out, OnloadFunction)
}

func TestExperimentalMobileAggressiveOmitsSwapRuntime(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.EnableInlinePreviewImagesExperimental = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, `<img pagespeed_high_res_src="`+img1URL+`"/>`)
	// The map goes out and the previews stay in place: no swap runtime.
	assert.Contains(t, out, "replaceWithLowRes();")
	assert.NotContains(t, out, "replaceWithHighRes")
	assert.Equal(t, 0, strings.Count(out, delayImagesSuffix))
}

func TestExperimentalWithLazyHighResKeepsRuntime(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.EnableInlinePreviewImagesExperimental = true
	opts.LazyloadHighResImages = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, mobileUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Contains(t, out, "pagespeed.delayImages.registerLazyLoadHighRes();")
	assert.NotContains(t, out, "replaceWithHighRes();")
}

func TestInputTypeImage(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><input type="image" src="`+img1URL+`"/><input type="text" src="x"/></body></html>`)

	assert.Contains(t, out, `<input type="image" pagespeed_high_res_src="`+img1URL+`" src="data:image/jpeg;base64,`)
	assert.Contains(t, out, `<input type="text" src="x"/>`)
}

func TestResizeForMobileShrinksPreview(t *testing.T) {
	base := config.DefaultRewriteOptions()
	base.EnableAggressiveRewritersForMobile = true

	resized := base
	resized.ResizeMobileImages = true

	doc := `<html><body><img src="` + img1URL + `"/></body></html>`
	_, recFull := runPass(t, New(base, testFetcher(t)), mobileUA, doc)
	_, recSmall := runPass(t, New(resized, testFetcher(t)), mobileUA, doc)

	full := recFull.RewriterInfos()[0].Image.LowResSize
	small := recSmall.RewriterInfos()[0].Image.LowResSize
	assert.Greater(t, full, 0)
	assert.Less(t, small, full)
}

func TestResizeForMobileNarrowSourceUntouched(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.EnableAggressiveRewritersForMobile = true
	opts.ResizeMobileImages = true
	fetcher := testFetcher(t)
	narrowURL := "http://test.com/narrow.jpeg"
	fetcher.Add(narrowURL, "image/jpeg", makeJPEG(t, 200, 150))
	r := New(opts, fetcher)

	out, rec := runPass(t, r, mobileUA,
		`<html><body><img src="`+narrowURL+`"/></body></html>`)

	// Narrower than the 320px target: no preview, element left alone.
	assert.Contains(t, out, `<img src="`+narrowURL+`"/>`)
	assert.NotContains(t, out, "pagespeed_high_res_src")
	assert.NotContains(t, out, "<script")

	infos := rec.RewriterInfos()
	assert.Len(t, infos, 1)
	assert.Equal(t, stats.IDImageCritical, infos[0].ID)
	assert.False(t, infos[0].Image.IsLowResSrcInserted)
	assert.Equal(t, 0, infos[0].Image.LowResSize)
}

func TestWebPInlinedAsIs(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.MinImageSizeLowResolutionBytes = 1
	fetcher := preview.NewMemoryFetcher()
	webpURL := "http://test.com/1.webp"
	fetcher.Add(webpURL, "image/webp",
		append([]byte("RIFF\x10\x00\x00\x00WEBPVP8 "), bytes.Repeat([]byte{0xAB}, 64)...))
	r := New(opts, fetcher)

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+webpURL+`"/></body></html>`)

	assert.Contains(t, out, ` src="data:image/webp;base64,`)
}

func TestNoImagesNoInjection(t *testing.T) {
	doc := `<html><head><title>t</title></head><body><p>hello</p></body></html>`
	r := New(config.DefaultRewriteOptions(), testFetcher(t))

	out, rec := runPass(t, r, desktopUA, doc)
	assert.Equal(t, doc, out)
	assert.Equal(t, stats.HTMLActive, rec.HTMLStatus())
}

func TestNoscriptImagesStayUntouched(t *testing.T) {
	doc := `<html><body><noscript><img src="` + img1URL + `"/></noscript></body></html>`
	r := New(config.DefaultRewriteOptions(), testFetcher(t))

	out, _ := runPass(t, r, desktopUA, doc)
	assert.Contains(t, out, `<noscript><img src="`+img1URL+`"/></noscript>`)
	// But their presence still earns the redirect fallback.
	assert.Equal(t, 1, strings.Count(out, `content="0;url=`))
	assert.True(t, strings.Index(out, "<noscript>") < strings.Index(out, `<noscript><img`))
}

func TestRewriteIsIdempotent(t *testing.T) {
	r := New(config.DefaultRewriteOptions(), testFetcher(t))
	first, _ := runPass(t, r, desktopUA,
		`<html><head></head><body><img src="`+img1URL+`"/></body></html>`)
	second, _ := runPass(t, r, desktopUA, first)
	assert.Equal(t, first, second)
}

func TestRelativeSrcResolvedAgainstDocument(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="1.jpeg"/></body></html>`)

	// Fetched absolute, written back as authored.
	assert.Contains(t, out, `<img pagespeed_high_res_src="1.jpeg" src="data:image/jpeg;base64,`)
}

func TestRawEscapingPreserved(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	fetcher := testFetcher(t)
	src := img1URL + "?a=b&amp;c=d"
	fetcher.Add(src, "image/jpeg", makeJPEG(t, 640, 480))
	r := New(opts, fetcher)

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+src+`"/></body></html>`)

	assert.Contains(t, out, `pagespeed_high_res_src="`+src+`"`)
}

func TestNoBodyMeansNoRedirectBlock(t *testing.T) {
	r := New(config.DefaultRewriteOptions(), testFetcher(t))

	out, _ := runPass(t, r, desktopUA, `<div><img src="`+img1URL+`"/></div>`)
	assert.Contains(t, out, "pagespeed_high_res_src")
	assert.NotContains(t, out, "ModPagespeed=noscript")
}

func TestDeferWithoutHeadBootstrapsAtBody(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.DeferJavascript = true
	opts.LazyloadImages = true
	r := New(opts, testFetcher(t))

	out, _ := runPass(t, r, desktopUA,
		`<html><body><img src="`+img1URL+`"/></body></html>`)

	assert.Equal(t, 1, strings.Count(out, jsDisableScript()))
	assert.True(t, strings.HasSuffix(out, jsDeferLoaderScript()))
	assert.True(t, strings.Index(out, jsDisableScript()) < strings.Index(out, "addLowResImages"))
}

func TestDebugScriptsKeepComments(t *testing.T) {
	opts := config.DefaultRewriteOptions()
	opts.Debug = true
	r := New(opts, testFetcher(t))
	doc := `<html><body><img src="` + img1URL + `"/></body></html>`

	out, _ := runPass(t, r, desktopUA, doc)
	assert.Contains(t, out, "/*")

	opts.Debug = false
	out, _ = runPass(t, New(opts, testFetcher(t)), desktopUA, doc)
	assert.NotContains(t, out, "/*")
}
