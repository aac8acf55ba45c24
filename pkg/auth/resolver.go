// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-token-proxy/pkg/metrics"
)

const noCredential = "none"

// Resolver walks its sources in order and returns the first credential.
type Resolver struct {
	sources []Source
	logger  zerolog.Logger
}

// NewResolver builds a resolver trying sources in the given order.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{
		sources: sources,
		logger:  log.With().Str("component", "auth").Logger(),
	}
}

// Resolve returns the first credential any source produces. Source failures
// are logged and skipped. When nothing resolves, ErrUnauthorized is returned
// if required is set, otherwise an empty credential.
func (r *Resolver) Resolve(req *http.Request, required bool) (Credential, error) {
	for _, src := range r.sources {
		cred, err := src.Resolve(req)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("source", src.Name()).
				Str("path", req.URL.Path).
				Msg("credential source failed; trying next")
			continue
		}
		if cred.Empty() {
			continue
		}
		metrics.ObserveCredential(src.Name())
		r.logger.Debug().
			Str("source", src.Name()).
			Str("path", req.URL.Path).
			Msg("credential resolved")
		return cred, nil
	}

	metrics.ObserveCredential(noCredential)
	if required {
		return Credential{}, ErrUnauthorized
	}
	return Credential{}, nil
}
