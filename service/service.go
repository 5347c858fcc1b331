// Package service exposes the fingerprint engine through transport-neutral
// request and response types. Templates cross this boundary as encoded
// strings; everything below it works on decoded values.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
	"github.com/high-horse/fingerprint-server/logging"
)

type Option func(*Service)

func WithCodec(c fingerprint.Codec) Option {
	return func(s *Service) {
		s.codec = c
	}
}

func WithCreator(c *extract.Creator) Option {
	return func(s *Service) {
		s.creator = c
	}
}

// WithTimeout bounds every Match call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithTransparency(t *fingerprint.TransparencyLogger) Option {
	return func(s *Service) {
		s.transparency = t
	}
}

type Service struct {
	log          *logrus.Logger
	validate     *validator.Validate
	policy       fingerprint.Policy
	codec        fingerprint.Codec
	creator      *extract.Creator
	transparency *fingerprint.TransparencyLogger
	identifier   *fingerprint.Identifier
	timeout      time.Duration
}

func New(log *logrus.Logger, validate *validator.Validate, policy fingerprint.Policy, opts ...Option) *Service {
	s := &Service{
		log:      log,
		validate: validate,
		policy:   policy,
		codec:    fingerprint.DefaultCodec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.creator == nil {
		s.creator = extract.NewCreator(extract.DefaultOptions())
	}
	s.identifier = fingerprint.NewIdentifier(policy, s.transparency)
	return s
}

// Match runs a 1:N identification of the probe against the roster.
func (s *Service) Match(ctx context.Context, req MatchRequest) (MatchResponse, error) {
	start := time.Now()
	if err := s.validate.Struct(req); err != nil {
		return MatchResponse{}, classify(err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	probe, err := fingerprint.Decode([]byte(req.Probe))
	if err != nil {
		return MatchResponse{}, classify(fmt.Errorf("probe: %w", err))
	}
	// A rejected probe never looks at the roster, so it is not decoded.
	// Identify records the verdict itself.
	var roster fingerprint.Roster
	if fingerprint.AssessQuality(probe, s.identifier.Policy().Quality).Accepted {
		roster, err = decodeRoster(req.Roster)
		if err != nil {
			return MatchResponse{}, classify(err)
		}
	}

	result, err := s.identifier.Identify(ctx, probe, roster)
	if err != nil {
		return MatchResponse{}, classify(err)
	}

	resp := toMatchResponse(result)
	resp.ElapsedMs = time.Since(start).Milliseconds()
	logging.Entry(ctx, s.log).WithFields(logging.Fields{
		"outcome":     result.Outcome,
		"reason":      result.Reason,
		"roster_size": len(req.Roster),
		"elapsed_ms":  resp.ElapsedMs,
	}).Info("identification finished")
	return resp, nil
}

func decodeRoster(items []RosterItem) (fingerprint.Roster, error) {
	roster := make(fingerprint.Roster, len(items))
	for i, item := range items {
		t, err := fingerprint.Decode([]byte(item.Template))
		if err != nil {
			return nil, fmt.Errorf("roster[%d] %s: %w", i, item.PersonID, err)
		}
		roster[i] = fingerprint.RosterEntry{PersonID: item.PersonID, Template: t}
	}
	return roster, nil
}

// VerifyQuality applies the quality gate to an encoded template.
func (s *Service) VerifyQuality(ctx context.Context, req QualityRequest) (QualityResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return QualityResponse{}, classify(err)
	}
	t, err := fingerprint.Decode([]byte(req.Template))
	if err != nil {
		return QualityResponse{}, classify(err)
	}
	v, err := s.identifier.AssessQuality(t)
	if err != nil {
		return QualityResponse{}, classify(err)
	}
	logging.Entry(ctx, s.log).WithFields(logging.Fields{
		"accepted":       v.Accepted,
		"minutiae_count": v.MinutiaeCount,
	}).Debug("quality assessed")
	return QualityResponse{
		Accepted:      v.Accepted,
		Score:         v.Score,
		MinutiaeCount: v.MinutiaeCount,
		Reason:        v.Reason,
	}, nil
}

// Verify compares a probe against one claimed identity.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (fingerprint.Verification, error) {
	if err := s.validate.Struct(req); err != nil {
		return fingerprint.Verification{}, classify(err)
	}
	probe, err := fingerprint.Decode([]byte(req.Probe))
	if err != nil {
		return fingerprint.Verification{}, classify(fmt.Errorf("probe: %w", err))
	}
	candidate, err := fingerprint.Decode([]byte(req.Candidate))
	if err != nil {
		return fingerprint.Verification{}, classify(fmt.Errorf("candidate: %w", err))
	}
	v, err := fingerprint.Verify(probe, candidate, s.policy)
	if err != nil {
		return fingerprint.Verification{}, classify(err)
	}
	logging.Entry(ctx, s.log).WithField("matched", v.Matched).Debug("verification finished")
	return v, nil
}

func (s *Service) Features(_ context.Context, req FeaturesRequest) (fingerprint.Features, error) {
	if err := s.validate.Struct(req); err != nil {
		return fingerprint.Features{}, classify(err)
	}
	t, err := fingerprint.Decode([]byte(req.Template))
	if err != nil {
		return fingerprint.Features{}, classify(err)
	}
	return fingerprint.Summarize(t), nil
}

// Extract builds a template from an image and reports whether it passes the
// quality gate. A template that fails the gate is still returned.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (ExtractResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return ExtractResponse{}, classify(err)
	}
	data, _, err := extract.ParseDataURL(req.Image)
	if err != nil {
		return ExtractResponse{}, classify(err)
	}
	t, err := s.creator.FromBytes(data)
	if err != nil {
		return ExtractResponse{}, classify(err)
	}
	raw, err := s.codec.Encode(t)
	if err != nil {
		return ExtractResponse{}, classify(err)
	}
	v := fingerprint.AssessQuality(t, s.policy.Quality)
	logging.Entry(ctx, s.log).WithFields(logging.Fields{
		"minutiae_count": v.MinutiaeCount,
		"quality":        v.Score,
	}).Info("template extracted")
	return ExtractResponse{
		Template:      string(raw),
		Quality:       t.Quality,
		MinutiaeCount: len(t.Minutiae),
		Accepted:      v.Accepted,
		Reason:        v.Reason,
	}, nil
}
