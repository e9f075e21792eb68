package nodeid

import (
	"context"
	"errors"
)

// ErrNoService is returned by Rehydrate when no Service is bound to the
// context.
var ErrNoService = errors.New("no node identifier service in context")

type serviceKey struct{}

// NewContext binds s to ctx so that code deserializing identifiers further
// down the call chain can validate them.
func NewContext(ctx context.Context, s *Service) context.Context {
	return context.WithValue(ctx, serviceKey{}, s)
}

// FromContext returns the Service bound to ctx.
func FromContext(ctx context.Context) (*Service, bool) {
	s, ok := ctx.Value(serviceKey{}).(*Service)
	return s, ok && s != nil
}

// Rehydrate turns an externalized canonical string back into an identifier
// by parsing it through the Service bound to ctx. Stored or transmitted
// identifiers must always come back through this path (or a Service parse
// call) so their invariants are checked again.
func Rehydrate(ctx context.Context, input string, t Type) (NodeIdentifier, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoService
	}
	return s.Parse(input, t)
}
