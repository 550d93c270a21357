package server

import (
	"fmt"

	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/rewrite"
	"github.com/pageboost/pageboost/internal/rule"
	proxyhttp "github.com/pageboost/pageboost/internal/server/http"
	"github.com/pageboost/pageboost/internal/stats"
)

type Server interface {
	Start() error
	Close() error
}

func NewServer(cfg *config.Config, rw *rewrite.Rewriter, engine *rule.Engine, docStats *stats.DocumentRecordList) (Server, error) {
	switch cfg.ServerMode {
	case config.ServerModeHTTP:
		return proxyhttp.New(cfg, rw, engine, docStats), nil
	default:
		return nil, fmt.Errorf("unknown server mode: %s", cfg.ServerMode)
	}
}
