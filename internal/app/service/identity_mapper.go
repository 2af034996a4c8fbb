package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifan077/PowerForm/config"
	"github.com/sifan077/PowerForm/internal/app/apperr"
	"github.com/sifan077/PowerForm/internal/app/repository"
)

// ClientIdentityMapper translates an incoming client reference into the
// identifier form this deployment stores.
type ClientIdentityMapper interface {
	MapIdentifier(ctx context.Context, raw string) (string, error)
}

type identityMapper struct {
	mode      string
	directory repository.ClientDirectory
}

// NewClientIdentityMapper returns a mapper for mode (one of the config.Identity*
// constants). An empty mode, or a nil directory, passes identifiers through.
func NewClientIdentityMapper(mode string, directory repository.ClientDirectory) ClientIdentityMapper {
	if mode == "" || directory == nil {
		mode = config.IdentityPassthrough
	}
	return &identityMapper{mode: mode, directory: directory}
}

func (m *identityMapper) MapIdentifier(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || m.mode == config.IdentityPassthrough {
		return raw, nil
	}

	client, err := m.directory.FindByReference(ctx, raw)
	if err != nil {
		// Unknown references are kept as given; the directory is not the
		// only source of client ids.
		if errors.Is(err, apperr.ErrNotFound) {
			return raw, nil
		}
		return "", fmt.Errorf("map client identifier: %w", err)
	}

	switch m.mode {
	case config.IdentityUUID:
		return client.ID, nil
	case config.IdentityCode:
		if client.Code != "" {
			return client.Code, nil
		}
	}
	return raw, nil
}
