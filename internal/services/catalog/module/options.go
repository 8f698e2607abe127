package module

import (
	"libris/internal/platform/config"
)

// Options configures the catalog module
type Options struct {
	DefaultLimit int
	MaxLimit     int

	// AdminToken guards mutating routes when set; empty leaves them open
	AdminToken string
}

// FromConfig reads options from config.Conf
func FromConfig(cfg config.Conf) Options {
	cf := cfg.Prefix("CATALOG_")
	return Options{
		DefaultLimit: cf.MayInt("DEFAULT_LIMIT", 100),
		MaxLimit:     cf.MayInt("MAX_LIMIT", 500),
		AdminToken:   cf.MayString("ADMIN_TOKEN", ""),
	}
}
