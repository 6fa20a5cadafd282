package config

import (
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// DefaultLocalPaths are the LibreOffice binaries probed by the local converter, in order.
var DefaultLocalPaths = []string{
	"soffice",
	"libreoffice",
	"/usr/bin/soffice",
	"/usr/lib/libreoffice/program/soffice",
	"/opt/libreoffice/program/soffice",
	"/snap/bin/libreoffice",
	"/Applications/LibreOffice.app/Contents/MacOS/soffice",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/valkiria/data/db/documents.db"
	}
	if cfg.Storage.FirestoreCollection == "" {
		cfg.Storage.FirestoreCollection = "valkiria"
	}
	if cfg.Blob.Backend == "" {
		cfg.Blob.Backend = BackendDisk
	}
	if cfg.Blob.Dir == "" {
		cfg.Blob.Dir = "/usr/local/var/valkiria/data/blobs"
	}
	if cfg.Render.LocalPaths == nil {
		cfg.Render.LocalPaths = append([]string(nil), DefaultLocalPaths...)
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = 20 * time.Second
	}
	if cfg.Render.ConnectTimeout == 0 {
		cfg.Render.ConnectTimeout = 30 * time.Second
	}
	if cfg.Render.ReadTimeout == 0 {
		cfg.Render.ReadTimeout = 60 * time.Second
	}
	if cfg.Templates.Extensions == nil {
		cfg.Templates.Extensions = []string{".docx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Templates.Directories) > 0 && cfg.Templates.Recursive == nil {
		t := true
		cfg.Templates.Recursive = &t
	}
	if cfg.Stamp.DateLayout == "" {
		cfg.Stamp.DateLayout = "02/01/2006 15:04"
	}
	if cfg.Stamp.LabelPoints == 0 {
		cfg.Stamp.LabelPoints = 7
	}
	if cfg.Stamp.Location == "" {
		cfg.Stamp.Location = "UTC"
	}
	if cfg.Stamp.LabelPrefix == "" {
		cfg.Stamp.LabelPrefix = "Firmado por"
	}
	if cfg.Stamp.Opacity == 0 {
		cfg.Stamp.Opacity = 1
	}
	if cfg.Variables.DateLayout == "" {
		cfg.Variables.DateLayout = models.DefaultValueFormat.DateLayout
	}
	if cfg.Variables.TrueLabel == "" {
		cfg.Variables.TrueLabel = models.DefaultValueFormat.TrueLabel
	}
	if cfg.Variables.FalseLabel == "" {
		cfg.Variables.FalseLabel = models.DefaultValueFormat.FalseLabel
	}
}
