// Package stats records, per rewritten document, what the rewriters did,
// and aggregates counters across documents for the periodic dump.
package stats

import (
	"log/slog"
	"sync"
)

// ApplicationStatus is the outcome recorded for a single rewriter
// application on a single element.
type ApplicationStatus string

const (
	StatusAppliedOK  ApplicationStatus = "APPLIED_OK"
	StatusNotApplied ApplicationStatus = "NOT_APPLIED"
)

// HTMLStatus is the document-level outcome of the delay-images rewriter.
type HTMLStatus string

const (
	HTMLActive      HTMLStatus = "ACTIVE"
	HTMLUnsupported HTMLStatus = "USER_AGENT_NOT_SUPPORTED"
	HTMLDisabled    HTMLStatus = "DISABLED"
)

// Rewriter IDs as they appear in the log record.
const (
	IDImageCritical = "ic"
	IDDelayImages   = "di"
	IDLazyload      = "ll"
)

type ImageInfo struct {
	IsLowResSrcInserted bool
	LowResSize          int
}

type RewriterInfo struct {
	ID           string
	Status       ApplicationStatus
	IsInlined    bool
	IsCritical   bool
	HasImageInfo bool
	Image        ImageInfo
}

// Recorder collects the rewrite log record for one document. Entries are
// kept in the order elements appear in the document. Safe for concurrent
// use; a document rewritten across flush windows appends from the
// serving goroutine while the dump worker reads.
type Recorder struct {
	mu         sync.Mutex
	docURL     string
	htmlStatus HTMLStatus
	infos      []RewriterInfo
}

func NewRecorder(docURL string) *Recorder {
	return &Recorder{docURL: docURL, htmlStatus: HTMLDisabled}
}

func (r *Recorder) DocURL() string {
	return r.docURL
}

func (r *Recorder) SetHTMLStatus(status HTMLStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.htmlStatus = status
}

func (r *Recorder) HTMLStatus() HTMLStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.htmlStatus
}

func (r *Recorder) AddRewriterInfo(info RewriterInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
}

// RewriterInfos returns a copy of the recorded entries.
func (r *Recorder) RewriterInfos() []RewriterInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RewriterInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// AppliedRewriters lists the distinct rewriter IDs that applied at least
// once, in first-applied order.
func (r *Recorder) AppliedRewriters() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, info := range r.infos {
		if info.Status != StatusAppliedOK || seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		ids = append(ids, info.ID)
	}
	return ids
}

func (r *Recorder) LogValue() slog.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	images, inlined := 0, 0
	for _, info := range r.infos {
		if info.ID == IDImageCritical {
			images++
		}
		if info.IsInlined {
			inlined++
		}
	}
	return slog.GroupValue(
		slog.String("doc", r.docURL),
		slog.String("status", string(r.htmlStatus)),
		slog.Int("images", images),
		slog.Int("inlined", inlined),
	)
}
