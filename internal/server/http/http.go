// Package http runs the forward proxy that feeds HTML responses through
// the delay-images rewriter and serves the rewriter's own static assets.
package http

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pageboost/pageboost/internal/assets"
	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/log"
	"github.com/pageboost/pageboost/internal/rewrite"
	"github.com/pageboost/pageboost/internal/rule"
	"github.com/pageboost/pageboost/internal/stats"
)

const (
	dialTimeout   = 10 * time.Second
	streamBufSize = 8 * 1024
)

type Server struct {
	cfg      *config.Config
	rw       *rewrite.Rewriter
	engine   *rule.Engine
	docStats *stats.DocumentRecordList

	server   *http.Server
	listener net.Listener
	provider *assets.Provider
}

func New(cfg *config.Config, rw *rewrite.Rewriter, engine *rule.Engine, docStats *stats.DocumentRecordList) *Server {
	return &Server{
		cfg:      cfg,
		rw:       rw,
		engine:   engine,
		docStats: docStats,
		provider: assets.NewProvider(cfg.Rewrite.Debug),
	}
}

func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("net.Listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodConnect {
				s.handleTunneling(w, req)
			} else {
				s.handleHTTP(w, req)
			}
		}),
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("http.Server.Serve", slog.Any("error", err))
		}
	}()
	return nil
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

func (s *Server) handleHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasPrefix(req.URL.Path, assets.HandlerPrefix) {
		s.serveAsset(w, req)
		return
	}

	req.RequestURI = ""
	req.URL.Scheme = "http"
	if req.URL.Host == "" {
		req.URL.Host = req.Host
	}
	destPort := req.URL.Port()
	if destPort == "" {
		destPort = "80"
	}
	destAddr := net.JoinHostPort(req.URL.Hostname(), destPort)

	target, err := net.DialTimeout("tcp", destAddr, dialTimeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer func() {
		if cerr := target.Close(); cerr != nil {
			slog.Warn("target.Close", slog.String("dest", destAddr), slog.Any("error", cerr))
		}
	}()

	// Compressed bodies cannot be rewritten in flight.
	req.Header.Del("Accept-Encoding")

	if err := req.Write(target); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp, err := http.ReadResponse(bufio.NewReader(target), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("resp.Body.Close", slog.String("dest", destAddr), slog.Any("error", cerr))
		}
	}()

	if rewritable(resp) && s.shouldRewrite(req, target, destPort) {
		s.streamRewritten(w, req, resp)
		return
	}
	copyHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// shouldRewrite applies the configured rewrite mode and rule set to one
// request.
func (s *Server) shouldRewrite(req *http.Request, target net.Conn, destPort string) bool {
	switch s.cfg.RewriteMode {
	case config.RewriteModeDirect:
		return false
	case config.RewriteModeRules:
		if s.engine == nil {
			return true
		}
		srcIP, _, _ := net.SplitHostPort(req.RemoteAddr)
		dstIP, _, _ := net.SplitHostPort(target.RemoteAddr().String())
		port, _ := strconv.Atoi(destPort)
		decision := s.engine.Decide(&rule.Metadata{
			Host:     req.URL.Hostname(),
			URL:      req.URL.String(),
			SrcIP:    srcIP,
			DstIP:    dstIP,
			DestPort: port,
		})
		return decision == rule.ActionRewrite
	}
	return true
}

// rewritable reports whether the response body is HTML the rewriter can
// process.
func rewritable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return false
	}
	return strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}

// streamRewritten pipes the HTML body through a rewriting pass. Each read
// from the origin closes one flush window, so documents render while
// later chunks are still in flight.
func (s *Server) streamRewritten(w http.ResponseWriter, req *http.Request, resp *http.Response) {
	docURL := req.URL.String()
	ua := req.Header.Get("User-Agent")
	recorder := stats.NewRecorder(docURL)

	copyHeader(w.Header(), resp.Header)
	// The rewritten length is unknown up front.
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	pass := s.rw.NewPass(req.Context(), docURL, ua, recorder, w)
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, streamBufSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := pass.Write(buf[:n]); werr != nil {
				log.LogWarnWithDoc(docURL, ua, "pass write failed")
				return
			}
			if ferr := pass.Flush(); ferr != nil {
				log.LogWarnWithDoc(docURL, ua, "pass flush failed")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.LogWarnWithDoc(docURL, ua, "origin read failed")
			}
			break
		}
	}
	if err := pass.Finish(); err != nil {
		log.LogWarnWithDoc(docURL, ua, "pass finish failed")
		return
	}
	slog.Info("document processed", "record", recorder)
	if s.docStats != nil {
		s.docStats.Report(req.URL.Hostname(), recorder)
	}
}

// serveAsset answers requests for the runtime files rewritten pages
// reference under the handler prefix, regardless of origin host.
func (s *Server) serveAsset(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case assets.BlankImagePath:
		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Cache-Control", "public, max-age=31536000")
		_, _ = w.Write(assets.BlankGIF())
	case assets.JsDeferPath:
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "public, max-age=31536000")
		_, _ = io.WriteString(w, s.provider.JsDeferJS())
	default:
		http.NotFound(w, req)
	}
}

func (s *Server) handleTunneling(w http.ResponseWriter, req *http.Request) {
	slog.Debug("CONNECT", slog.String("dest", req.Host))
	dest, err := net.DialTimeout("tcp", req.Host, dialTimeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		_ = dest.Close()
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	client, _, err := hijacker.Hijack()
	if err != nil {
		_ = dest.Close()
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		slog.Warn("CONNECT response write", slog.Any("error", err))
		_ = client.Close()
		_ = dest.Close()
		return
	}
	// Encrypted traffic passes through untouched.
	var wg sync.WaitGroup
	wg.Add(2)
	go copyHalf(&wg, dest, client)
	go copyHalf(&wg, client, dest)
	go func() {
		wg.Wait()
		_ = client.Close()
		_ = dest.Close()
	}()
}

func copyHalf(wg *sync.WaitGroup, dst, src net.Conn) {
	defer wg.Done()
	_, _ = io.Copy(dst, src)
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
