// Package ports forwards the client's listen port on the
// local router so that peers outside the LAN can connect.
package ports

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gitlab.com/NebulousLabs/go-upnp"

	"github.com/namvu9/btcore/internal/errors"
)

const description = "Bitsy BitTorrent client"

// Router is the part of a UPnP gateway the service uses
type Router interface {
	Forward(port uint16, desc string) error
	Clear(port uint16) error
	ExternalIP() (string, error)
}

// Discoverer finds the local gateway
type Discoverer func(context.Context) (Router, error)

func discoverUPnP(ctx context.Context) (Router, error) {
	igd, err := upnp.DiscoverCtx(ctx)
	if err != nil {
		return nil, err
	}

	return igd, nil
}

// Service forwards ports through a router discovered on
// first use and remembers them so Close can clear them
type Service struct {
	discover Discoverer

	mu        sync.Mutex
	router    Router
	forwarded []uint16
}

func NewService() *Service {
	return NewServiceWith(discoverUPnP)
}

// NewServiceWith uses discover to find the gateway
func NewServiceWith(discover Discoverer) *Service {
	return &Service{discover: discover}
}

func (s *Service) gateway(ctx context.Context) (Router, error) {
	if s.router != nil {
		return s.router, nil
	}

	router, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}

	s.router = router
	return router, nil
}

func (s *Service) Forward(ctx context.Context, port uint16) error {
	var op errors.Op = "ports.Service.Forward"

	s.mu.Lock()
	defer s.mu.Unlock()

	router, err := s.gateway(ctx)
	if err != nil {
		return errors.Wrap(err, op, errors.Network)
	}

	if err := router.Forward(port, description); err != nil {
		return errors.Wrap(err, op, errors.Network)
	}

	s.forwarded = append(s.forwarded, port)

	log.Info().Uint16("port", port).Msg("port forwarded")

	return nil
}

// ForwardMany forwards the first port in ports that the
// router accepts and returns it
func (s *Service) ForwardMany(ctx context.Context, ports []uint16) (uint16, error) {
	var (
		op   errors.Op = "ports.Service.ForwardMany"
		errs errors.Errors
	)

	for _, port := range ports {
		err := s.Forward(ctx, port)
		if err == nil {
			return port, nil
		}

		errs = append(errs, err)
	}

	err := fmt.Errorf("could not forward any of %v: %w", ports, errs)
	return 0, errors.Wrap(err, op, errors.Network)
}

// ExternalIP returns the router's public address
func (s *Service) ExternalIP(ctx context.Context) (string, error) {
	var op errors.Op = "ports.Service.ExternalIP"

	s.mu.Lock()
	defer s.mu.Unlock()

	router, err := s.gateway(ctx)
	if err != nil {
		return "", errors.Wrap(err, op, errors.Network)
	}

	ip, err := router.ExternalIP()
	if err != nil {
		return "", errors.Wrap(err, op, errors.Network)
	}

	return ip, nil
}

// Close removes every mapping made by the service
func (s *Service) Close() error {
	var op errors.Op = "ports.Service.Close"

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs errors.Errors
	for _, port := range s.forwarded {
		if err := s.router.Clear(port); err != nil {
			errs = append(errs, err)
			continue
		}

		log.Debug().Uint16("port", port).Msg("port mapping cleared")
	}

	s.forwarded = nil

	if len(errs) > 0 {
		return errors.Wrap(errs, op, errors.Network)
	}

	return nil
}
