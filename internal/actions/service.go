// Package actions implements the server actions behind the HTTP API:
// account establishment, file management and usage reporting. Every
// action is stateless and builds its client handles per call.
package actions

import (
	"github.com/storeit/storeit/internal/backend"
)

// Config holds the fixed limits and addressing the actions need.
type Config struct {
	MaxFileSize     int64  // single-file cap, bytes
	MaxTotalStorage int64  // per-user ceiling, bytes
	PublicURL       string // base URL for file download links
}

// Service is the actions layer. Revalidator, when set, is called with
// the navigational path affected by a mutation so the presentation
// layer can refresh it.
type Service struct {
	backend     *backend.Factory
	cfg         Config
	Revalidator func(path string)
}

// New creates the actions service over a client factory.
func New(factory *backend.Factory, cfg Config) *Service {
	return &Service{backend: factory, cfg: cfg}
}

func (s *Service) revalidate(path string) {
	if s.Revalidator != nil && path != "" {
		s.Revalidator(path)
	}
}
