package stats

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// DocumentRecordList aggregates per-host rewrite counters across documents
// and dumps them to a file every few seconds.
type DocumentRecordList struct {
	recordAddChan chan *DocumentRecord
	records       map[string]*DocumentRecord
	mu            sync.RWMutex

	dumpRecords []*DocumentRecord
	dumpFile    string
	dumpWriter  *bufio.Writer
}

type DocumentRecord struct {
	Host          string     `json:"host"`
	Documents     int        `json:"documents"`
	ImagesInlined int        `json:"images_inlined"`
	HTMLStatus    HTMLStatus `json:"html_status"`
}

func NewDocumentRecordList(dumpFile string) *DocumentRecordList {
	return &DocumentRecordList{
		recordAddChan: make(chan *DocumentRecord, 100),
		records:       make(map[string]*DocumentRecord, 300),
		mu:            sync.RWMutex{},
		dumpRecords:   make([]*DocumentRecord, 0, 300),
		dumpFile:      dumpFile,
		dumpWriter:    bufio.NewWriter(nil),
	}
}

func (l *DocumentRecordList) Run() {
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case record := <-l.recordAddChan:
				l.Add(record)
			case <-ticker.C:
				l.Dump()
			}
		}
	}()
}

// Report queues the finished document's counters without blocking the
// serving goroutine. Full channel drops the sample.
func (l *DocumentRecordList) Report(host string, recorder *Recorder) {
	inlined := 0
	for _, info := range recorder.RewriterInfos() {
		if info.IsInlined {
			inlined++
		}
	}
	record := &DocumentRecord{
		Host:          host,
		Documents:     1,
		ImagesInlined: inlined,
		HTMLStatus:    recorder.HTMLStatus(),
	}
	select {
	case l.recordAddChan <- record:
	default:
		slog.Warn("stats channel full, dropping record", slog.String("host", host))
	}
}

func (l *DocumentRecordList) Add(record *DocumentRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, exists := l.records[record.Host]; exists {
		r.Documents += record.Documents
		r.ImagesInlined += record.ImagesInlined
		r.HTMLStatus = record.HTMLStatus
	} else {
		l.records[record.Host] = &DocumentRecord{
			Host:          record.Host,
			Documents:     record.Documents,
			ImagesInlined: record.ImagesInlined,
			HTMLStatus:    record.HTMLStatus,
		}
	}
}

func (l *DocumentRecordList) Dump() {
	f, err := os.Create(l.dumpFile)
	if err != nil {
		slog.Error("os.Create", slog.Any("error", err))
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("os.File.Close", slog.Any("error", err))
		}
	}()

	l.dumpRecords = l.dumpRecords[:0]
	l.mu.RLock()
	for _, record := range l.records {
		l.dumpRecords = append(l.dumpRecords, record)
	}
	l.mu.RUnlock()

	sort.SliceStable(l.dumpRecords, func(i, j int) bool {
		return l.dumpRecords[i].Documents > l.dumpRecords[j].Documents
	})

	l.dumpWriter.Reset(f)
	defer func() {
		if err := l.dumpWriter.Flush(); err != nil {
			slog.Error("bufio.Writer.Flush", slog.Any("error", err))
		}
	}()

	for _, record := range l.dumpRecords {
		_, err := fmt.Fprintf(l.dumpWriter, "%s %d %d %s\n",
			record.Host, record.Documents, record.ImagesInlined, record.HTMLStatus)
		if err != nil {
			slog.Error("Dump fmt.Fprintf", slog.Any("error", err))
		}
	}
}

// Snapshot returns a copy of the aggregated per-host records sorted by
// document count, most active hosts first.
func (l *DocumentRecordList) Snapshot() []DocumentRecord {
	l.mu.RLock()
	out := make([]DocumentRecord, 0, len(l.records))
	for _, record := range l.records {
		out = append(out, *record)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Documents > out[j].Documents
	})
	return out
}
