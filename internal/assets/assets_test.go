package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderVariants(t *testing.T) {
	debug := NewProvider(true)
	opt := NewProvider(false)

	for name, get := range map[string]func(*Provider) string{
		"delay_images":        (*Provider).DelayImagesJS,
		"delay_images_inline": (*Provider).DelayImagesInlineJS,
		"lazyload_images":     (*Provider).LazyloadImagesJS,
		"js_defer":            (*Provider).JsDeferJS,
	} {
		d := get(debug)
		o := get(opt)
		assert.NotEmpty(t, d, name)
		assert.NotEmpty(t, o, name)
		assert.NotEqual(t, d, o, name)
		assert.True(t, strings.Contains(d, "/*"), "%s debug variant keeps comments", name)
		assert.False(t, strings.Contains(o, "/*"), "%s compiled variant has no comments", name)
	}
}

func TestBlankGIF(t *testing.T) {
	gif := BlankGIF()
	assert.True(t, strings.HasPrefix(string(gif), "GIF89a"))
	assert.True(t, strings.HasSuffix(string(gif), ";"), "gif trailer")
}
