package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LocalConverter runs a LibreOffice binary in headless mode.
type LocalConverter struct {
	paths  []string
	logger *zap.Logger

	once   sync.Once
	binary string
}

// NewLocalConverter probes paths in order on first use; the result is kept for the life
// of the converter.
func NewLocalConverter(paths []string, logger *zap.Logger) *LocalConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalConverter{paths: paths, logger: logger}
}

func (c *LocalConverter) Name() string { return "local" }

// Binary returns the resolved converter binary, or "" when none is installed.
func (c *LocalConverter) Binary() string {
	c.once.Do(func() {
		for _, p := range c.paths {
			if resolved, err := exec.LookPath(p); err == nil {
				c.binary = resolved
				c.logger.Debug("local converter found", zap.String("path", resolved))
				return
			}
		}
		c.logger.Debug("no local converter installed", zap.Strings("probed", c.paths))
	})
	return c.binary
}

func (c *LocalConverter) Convert(ctx context.Context, content []byte) ([]byte, error) {
	bin := c.Binary()
	if bin == "" {
		return nil, ErrUnavailable
	}

	dir, err := os.MkdirTemp("", "valkiria-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "document.docx")
	if err := os.WriteFile(in, content, 0600); err != nil {
		return nil, fmt.Errorf("failed to write input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin,
		"--headless", "--norestore",
		"-env:UserInstallation=file://"+filepath.ToSlash(filepath.Join(dir, "profile")),
		"--convert-to", "pdf",
		"--outdir", dir,
		in,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s failed: %s", filepath.Base(bin), msg)
	}

	out, err := os.ReadFile(filepath.Join(dir, "document.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	return out, nil
}
