package rewrite

import (
	"fmt"
	"strings"

	"github.com/pageboost/pageboost/internal/assets"
)

// Attribute and handler names written into rewritten markup. Client
// runtimes in internal/assets look these up by name, keep them in sync.
const (
	HighResSrcAttr = "pagespeed_high_res_src"
	LazySrcAttr    = "pagespeed_lazy_src"
	NoDeferAttr    = "pagespeed_no_defer"

	BlankImageSrc = assets.BlankImagePath

	// Swaps in the high resolution source once the low resolution
	// preview has painted.
	OnloadFunction = "var elem=this;setTimeout(function(){elem.onload = null;" +
		"elem.src=elem.getAttribute('pagespeed_high_res_src');}, 0);"

	ImageOnloadCode = "pagespeed.lazyLoadImages.loadIfVisible(this);"

	delayImagesSuffix       = "\npagespeed.delayImages = new pagespeed.DelayImages();"
	delayImagesInlineSuffix = "\npagespeed.delayImagesInline = new pagespeed.DelayImagesInline();"

	scriptOpen        = `<script type="text/javascript">`
	scriptOpenNoDefer = `<script type="text/javascript" ` + NoDeferAttr + `="">`
	scriptClose       = `</script>`
)

const noScriptRedirectFormatter = `<noscript><meta HTTP-EQUIV="refresh" content="0;url='%s'" />` +
	`<style><!--table,div,span,font,p{display:none} --></style>` +
	`<div style="display:block">Please click <a href="%s">here</a> ` +
	`if you are not redirected within a few seconds.</div></noscript>`

// noScriptRedirect builds the fallback block sent to script-less agents.
// They get redirected to an unrewritten rendering of the page.
func noScriptRedirect(docURL string) string {
	sep := "?"
	if strings.Contains(docURL, "?") {
		sep = "&"
	}
	redirect := docURL + sep + "ModPagespeed=noscript"
	return fmt.Sprintf(noScriptRedirectFormatter, redirect, redirect)
}

func inlineRuntimeScript(js string) string {
	return scriptOpen + js + delayImagesInlineSuffix + scriptClose
}

func inlineMapScript(entries []inlineEntry) string {
	var b strings.Builder
	b.WriteString(scriptOpen)
	for _, e := range entries {
		fmt.Fprintf(&b, "\npagespeed.delayImagesInline.addLowResImages('%s', '%s');",
			e.url, e.dataURI)
	}
	b.WriteString("\npagespeed.delayImagesInline.replaceWithLowRes();\n")
	b.WriteString(scriptClose)
	return b.String()
}

func delayRuntimeScript(js, trigger string) string {
	return scriptOpen + js + delayImagesSuffix +
		"\npagespeed.delayImages." + trigger + "();\n" + scriptClose
}

func delayTriggerScript(trigger string) string {
	return scriptOpen + "\npagespeed.delayImages." + trigger + "();\n" + scriptClose
}

func lazyloadRuntimeScript(js string) string {
	return scriptOpenNoDefer + js +
		"\npagespeed.lazyLoadInit(false, \"" + BlankImageSrc + "\");\n" + scriptClose
}

func lazyloadOverrideScript() string {
	return scriptOpenNoDefer +
		"pagespeed.lazyLoadImages.overrideAttributeFunctions();" + scriptClose
}

func jsDisableScript() string {
	return scriptOpenNoDefer + assets.JsDisableCode + scriptClose
}

func jsDeferLoaderScript() string {
	return `<script type="text/javascript" src="` + assets.JsDeferPath + `">` + scriptClose
}
