package stream

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/voxplay/internal/resilience"
)

// Backend is a named [Resolver] registered with a [Service].
type Backend struct {
	Name     string
	Resolver Resolver
}

// Config configures a [Service].
type Config struct {
	// FFmpegPath is the ffmpeg executable used by the default backends.
	FFmpegPath string

	// AllowedHosts extends the validator with direct-link hosts.
	AllowedHosts []string

	// BreakerMaxFailures is the number of consecutive failures that open a
	// backend's circuit breaker. Default: 5.
	BreakerMaxFailures int

	// BreakerReset is how long an open breaker rejects calls. Default: 30s.
	BreakerReset time.Duration

	// OnBreakerChange, if set, observes every breaker transition.
	OnBreakerChange func(backend string, from, to resilience.State)

	// TestFile is a local audio file accepted as a track and decoded by
	// Local instead of the backends. Empty disables it.
	TestFile string

	// Local decodes TestFile. Default: a [LocalResolver].
	Local Resolver
}

// Service is the production [Provider]: a [Validator] in front of a
// failover chain of backends, each guarded by a circuit breaker.
type Service struct {
	Validator
	group *resilience.FallbackGroup[Resolver]
	local Resolver
}

// Compile-time interface assertion.
var _ Provider = (*Service)(nil)

// New creates a Service. Without explicit backends it uses yt-dlp as the
// primary and [NativeResolver] as the fallback.
func New(cfg Config, backends ...Backend) *Service {
	if len(backends) == 0 {
		backends = []Backend{
			{Name: "ytdlp", Resolver: &YTDLPResolver{FFmpegPath: cfg.FFmpegPath}},
			{Name: "native", Resolver: &NativeResolver{FFmpegPath: cfg.FFmpegPath}},
		}
	}

	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   cfg.BreakerMaxFailures,
			ResetTimeout:  cfg.BreakerReset,
			OnStateChange: cfg.OnBreakerChange,
			IsFailure: func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrInvalidTrack)
			},
		},
		Final: func(err error) bool { return errors.Is(err, ErrInvalidTrack) },
	}

	group := resilience.NewFallbackGroup(backends[0].Resolver, backends[0].Name, fcfg)
	for _, b := range backends[1:] {
		group.AddFallback(b.Name, b.Resolver)
	}
	if cfg.Local == nil {
		cfg.Local = &LocalResolver{FFmpegPath: cfg.FFmpegPath}
	}
	return &Service{
		Validator: Validator{AllowedHosts: cfg.AllowedHosts, LocalFile: cfg.TestFile},
		group:     group,
		local:     cfg.Local,
	}
}

// Resolve validates track and resolves it with the first healthy backend.
// The configured test file skips the backends and their breakers.
func (s *Service) Resolve(ctx context.Context, track string) (*Resource, error) {
	if err := s.Validate(track); err != nil {
		return nil, err
	}
	if s.isLocal(track) {
		return s.local.Resolve(ctx, track)
	}
	return resilience.ExecuteWithResult(ctx, s.group, func(ctx context.Context, r Resolver) (*Resource, error) {
		return r.Resolve(ctx, track)
	})
}

// BackendStates reports each backend's circuit breaker state.
func (s *Service) BackendStates() map[string]resilience.State {
	return s.group.States()
}
