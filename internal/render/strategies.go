package render

import (
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"go.uber.org/zap"
)

// FromConfig builds the pipeline in fixed priority order: local converter, then the
// remote endpoint when configured. Pending is the implicit last resort.
func FromConfig(cfg *config.RenderConfig, logger *zap.Logger) *Pipeline {
	var strategies []Strategy
	if !cfg.DisableLocal && len(cfg.LocalPaths) > 0 {
		strategies = append(strategies, NewLocalConverter(cfg.LocalPaths, logger))
	}
	if cfg.RemoteURL != "" {
		strategies = append(strategies, NewRemoteConverter(cfg.RemoteURL, cfg.ConnectTimeout, cfg.ReadTimeout))
	}
	opts := []Option{WithTimeout(cfg.Timeout)}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return NewPipeline(strategies, opts...)
}

// Strategies returns the names of the configured strategies in order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}
