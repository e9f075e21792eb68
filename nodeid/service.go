package nodeid

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/zero-day-ai/identity/idgen"
)

const meterName = "github.com/zero-day-ai/identity/nodeid"

// NameRegistry owns the display names of instance and logical node
// sessions. Implementations must be safe for concurrent use.
type NameRegistry interface {
	NameResolver

	// AssociateDisplayName binds name to an instance session.
	AssociateDisplayName(id InstanceNodeSessionID, name string)

	// AssociateDisplayNameWithLogicalNode binds name to a logical node session.
	AssociateDisplayNameWithLogicalNode(id LogicalNodeSessionID, name string)

	// PrintAllNameAssociations writes a diagnostic dump of all bindings.
	PrintAllNameAssociations(w io.Writer, introText string) error
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	generator     *idgen.Generator
	names         NameRegistry
	logger        *slog.Logger
	meterProvider metric.MeterProvider
}

// WithGenerator sets the token generator. The default is idgen.New().
func WithGenerator(gen *idgen.Generator) Option {
	return func(c *serviceConfig) {
		c.generator = gen
	}
}

// WithNameRegistry sets the registry that name association calls are
// forwarded to. Without one, associations are dropped and every identifier
// displays as UnresolvedDisplayName.
func WithNameRegistry(names NameRegistry) Option {
	return func(c *serviceConfig) {
		c.names = names
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// WithMeterProvider enables generation and parse-failure counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *serviceConfig) {
		c.meterProvider = mp
	}
}

// Service is the only way to obtain node identifiers: it generates fresh
// ones and parses external strings into validated ones. It also forwards
// name associations to its NameRegistry.
//
// Thread-safety: all methods are safe for concurrent use.
type Service struct {
	gen    *idgen.Generator
	names  NameRegistry
	logger *slog.Logger

	generated     metric.Int64Counter
	parseFailures metric.Int64Counter
}

// NewService creates a Service.
func NewService(opts ...Option) (*Service, error) {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if cfg.generator == nil {
		cfg.generator = idgen.New()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = noop.NewMeterProvider()
	}

	meter := cfg.meterProvider.Meter(meterName)

	generated, err := meter.Int64Counter(
		"nodeid.generated",
		metric.WithDescription("Number of node identifiers generated"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generated counter: %w", err)
	}

	parseFailures, err := meter.Int64Counter(
		"nodeid.parse.failures",
		metric.WithDescription("Number of rejected identifier strings"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create parse failure counter: %w", err)
	}

	return &Service{
		gen:           cfg.generator,
		names:         cfg.names,
		logger:        cfg.logger,
		generated:     generated,
		parseFailures: parseFailures,
	}, nil
}

// GenerateInstanceNode returns a new instance identifier with a random
// instance part.
func (s *Service) GenerateInstanceNode() InstanceNodeID {
	id := newInstanceNodeID("Service.GenerateInstanceNode", s.gen.RandomHex(InstancePartLength), s)
	s.recordGenerated(TypeInstanceNode)
	return id
}

// GenerateInstanceNodeSession returns a new session of instance with a
// timestamp-derived session part.
func (s *Service) GenerateInstanceNodeSession(instance InstanceNodeID) InstanceNodeSessionID {
	const op = "Service.GenerateInstanceNodeSession"
	if instance.IsZero() {
		panic(invalidType(op, 0))
	}
	id := newInstanceNodeSessionID(op, instance.instancePart, s.gen.TimestampHex(SessionPartLength), s)
	s.recordGenerated(TypeInstanceNodeSession)
	return id
}

// GenerateTransientLogicalNode returns a logical node of instance whose
// logical part is the transient prefix followed by random hex.
func (s *Service) GenerateTransientLogicalNode(instance InstanceNodeID) LogicalNodeID {
	const op = "Service.GenerateTransientLogicalNode"
	if instance.IsZero() {
		panic(invalidType(op, 0))
	}
	suffix := s.gen.RandomHex(MaximumLogicalNodePartLength - len(TransientLogicalNodePrefix))
	id := newLogicalNodeID(op, instance.instancePart, TransientLogicalNodePrefix+suffix, s)
	s.recordGenerated(TypeLogicalNode)
	return id
}

// RecognizableLogicalNode returns the logical node of instance whose logical
// part is the recognizable prefix followed by recognitionPart.
func (s *Service) RecognizableLogicalNode(instance InstanceNodeID, recognitionPart string) (LogicalNodeID, error) {
	if recognitionPart == "" {
		return LogicalNodeID{}, malformed("Service.RecognizableLogicalNode", TypeLogicalNode, recognitionPart)
	}
	return instance.ExpandToLogicalNode(RecognizableLogicalNodePrefix + recognitionPart)
}

// ParseInstanceNode parses a canonical instance node string.
func (s *Service) ParseInstanceNode(input string) (InstanceNodeID, error) {
	const op = "Service.ParseInstanceNode"
	p, ok := decode(input, TypeInstanceNode)
	if !ok {
		return InstanceNodeID{}, s.parseFailed(op, TypeInstanceNode, input)
	}
	return newInstanceNodeID(op, p.instance, s), nil
}

// ParseInstanceNodeSession parses a canonical instance session string.
func (s *Service) ParseInstanceNodeSession(input string) (InstanceNodeSessionID, error) {
	const op = "Service.ParseInstanceNodeSession"
	p, ok := decode(input, TypeInstanceNodeSession)
	if !ok {
		return InstanceNodeSessionID{}, s.parseFailed(op, TypeInstanceNodeSession, input)
	}
	return newInstanceNodeSessionID(op, p.instance, p.session, s), nil
}

// ParseLogicalNode parses a canonical logical node string.
func (s *Service) ParseLogicalNode(input string) (LogicalNodeID, error) {
	const op = "Service.ParseLogicalNode"
	p, ok := decode(input, TypeLogicalNode)
	if !ok {
		return LogicalNodeID{}, s.parseFailed(op, TypeLogicalNode, input)
	}
	return newLogicalNodeID(op, p.instance, p.logical, s), nil
}

// ParseLogicalNodeSession parses a canonical logical node session string.
func (s *Service) ParseLogicalNodeSession(input string) (LogicalNodeSessionID, error) {
	const op = "Service.ParseLogicalNodeSession"
	p, ok := decode(input, TypeLogicalNodeSession)
	if !ok {
		return LogicalNodeSessionID{}, s.parseFailed(op, TypeLogicalNodeSession, input)
	}
	return newLogicalNodeSessionID(op, p.instance, p.logical, p.session, s), nil
}

// Parse parses input as an identifier of type t.
func (s *Service) Parse(input string, t Type) (NodeIdentifier, error) {
	var (
		id  NodeIdentifier
		err error
	)
	switch t {
	case TypeInstanceNode:
		id, err = s.ParseInstanceNode(input)
	case TypeInstanceNodeSession:
		id, err = s.ParseInstanceNodeSession(input)
	case TypeLogicalNode:
		id, err = s.ParseLogicalNode(input)
	case TypeLogicalNodeSession:
		id, err = s.ParseLogicalNodeSession(input)
	default:
		err = s.parseFailed("Service.Parse", t, input)
	}
	if err != nil {
		return nil, err
	}
	return id, nil
}

// AssociateDisplayName forwards a display name for an instance session to
// the name registry.
func (s *Service) AssociateDisplayName(id InstanceNodeSessionID, name string) {
	if s.names == nil {
		s.logger.Debug("no name registry configured, dropping association",
			"session", id.String(), "name", name)
		return
	}
	s.names.AssociateDisplayName(id, name)
}

// AssociateDisplayNameWithLogicalNode forwards a display name for a logical
// node session to the name registry.
func (s *Service) AssociateDisplayNameWithLogicalNode(id LogicalNodeSessionID, name string) {
	if s.names == nil {
		s.logger.Debug("no name registry configured, dropping association",
			"logical_session", id.String(), "name", name)
		return
	}
	s.names.AssociateDisplayNameWithLogicalNode(id, name)
}

// PrintAllNameAssociations writes the registry's diagnostic dump to w.
func (s *Service) PrintAllNameAssociations(w io.Writer, introText string) error {
	if s.names == nil {
		_, err := fmt.Fprintf(w, "%s\n  (no name registry)\n", introText)
		return err
	}
	return s.names.PrintAllNameAssociations(w, introText)
}

// ResolveDisplayName implements NameResolver for the identifiers this
// service builds.
func (s *Service) ResolveDisplayName(id NodeIdentifier) string {
	if s.names == nil {
		return UnresolvedDisplayName
	}
	return s.names.ResolveDisplayName(id)
}

// NameRegistry returns the configured registry, or nil.
func (s *Service) NameRegistry() NameRegistry {
	return s.names
}

func (s *Service) parseFailed(op string, t Type, input string) error {
	s.logger.Debug("rejected node identifier", "op", op, "type", t.String(), "input", input)
	s.parseFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", t.String())))
	return malformed(op, t, input)
}

func (s *Service) recordGenerated(t Type) {
	s.generated.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", t.String())))
}
