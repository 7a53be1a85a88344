package quorum

import (
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"

	"idregistry/internal/registry/models"
	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
)

type QuorumSuite struct {
	suite.Suite
	verifiers []*ecdsa.PrivateKey
	outsider  *ecdsa.PrivateKey
	settings  *models.Settings
	user      id.Address
	now       time.Time
	validator *Validator
}

func TestQuorumSuite(t *testing.T) {
	suite.Run(t, new(QuorumSuite))
}

func (s *QuorumSuite) SetupTest() {
	s.verifiers = nil
	addrs := make([]id.Address, 0, 3)
	for range 3 {
		key, err := crypto.GenerateKey()
		s.Require().NoError(err)
		s.verifiers = append(s.verifiers, key)
		addrs = append(addrs, signature.AddressOf(key))
	}
	outsider, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.outsider = outsider

	ctx, err := id.ContextFromString("1hive")
	s.Require().NoError(err)
	s.settings, err = models.NewSettings(models.InitParams{
		Context:               ctx,
		Verifiers:             addrs,
		RequiredVerifications: 2,
		RegistrationPeriod:    30 * 24 * time.Hour,
		TimestampVariance:     time.Hour,
	})
	s.Require().NoError(err)

	s.user = id.MustParseAddress("0x00000000000000000000000000000000000000aa")
	s.now = time.Unix(1_600_000_000, 0)
	s.validator = New()
}

type attestation struct {
	key *ecdsa.PrivateKey
	ts  uint64
}

func (s *QuorumSuite) request(atts ...attestation) *models.RegisterRequest {
	req := &models.RegisterRequest{Addresses: []id.Address{s.user}}
	for _, a := range atts {
		sig, err := signature.Attest(s.settings.Context, req.Addresses, a.ts, a.key)
		s.Require().NoError(err)
		req.Timestamps = append(req.Timestamps, a.ts)
		req.V = append(req.V, sig.V)
		req.R = append(req.R, sig.R)
		req.S = append(req.S, sig.S)
	}
	return req
}

func (s *QuorumSuite) ts(offset int64) uint64 {
	return uint64(s.now.Unix() + offset)
}

func (s *QuorumSuite) TestAcceptsQuorum() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
	)

	result, err := s.validator.Validate(s.now, s.settings, req)
	s.Require().NoError(err)
	s.Len(result.Accepted, 2)
	s.Equal(s.ts(-10), result.Earliest)
	s.Empty(result.Skipped)
}

func (s *QuorumSuite) TestOrderDoesNotMatter() {
	a := attestation{s.verifiers[0], s.ts(-10)}
	b := attestation{s.verifiers[1], s.ts(-5)}
	stranger := attestation{s.outsider, s.ts(-1)}

	for _, order := range [][]attestation{{a, b, stranger}, {stranger, b, a}, {b, stranger, a}} {
		result, err := s.validator.Validate(s.now, s.settings, s.request(order...))
		s.Require().NoError(err)
		s.Len(result.Accepted, 2)
		s.Equal(s.ts(-10), result.Earliest)
	}
}

func (s *QuorumSuite) TestSameVerifierTwiceDoesNotMeetThreshold() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[0], s.ts(-9)},
	)

	_, err := s.validator.Validate(s.now, s.settings, req)
	s.True(models.HasReason(err, models.ReasonNotVerified))
}

func (s *QuorumSuite) TestUntrustedSignerIsSkipped() {
	req := s.request(
		attestation{s.outsider, s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
	)

	_, err := s.validator.Validate(s.now, s.settings, req)
	s.True(models.HasReason(err, models.ReasonNotVerified))
}

func (s *QuorumSuite) TestSurplusToleratesOneBadAttestation() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-7200)},
		attestation{s.verifiers[1], s.ts(-5)},
		attestation{s.verifiers[2], s.ts(0)},
	)

	result, err := s.validator.Validate(s.now, s.settings, req)
	s.Require().NoError(err)
	s.Len(result.Accepted, 2)
	s.Require().Len(result.Skipped, 1)
	s.Equal(models.SkipOutOfWindow, result.Skipped[0].Cause)
	s.Equal(0, result.Skipped[0].Index)
}

func (s *QuorumSuite) TestStaleThenFreshFromSameVerifierCounts() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-7200)},
		attestation{s.verifiers[0], s.ts(-1)},
		attestation{s.verifiers[1], s.ts(-1)},
	)

	result, err := s.validator.Validate(s.now, s.settings, req)
	s.Require().NoError(err)
	s.Len(result.Accepted, 2)
}

func (s *QuorumSuite) TestTimestampWindowBoundary() {
	variance := int64(s.settings.TimestampVariance / time.Second)

	s.Run("now minus variance is accepted", func() {
		req := s.request(
			attestation{s.verifiers[0], s.ts(-variance)},
			attestation{s.verifiers[1], s.ts(-variance)},
		)
		_, err := s.validator.Validate(s.now, s.settings, req)
		s.NoError(err)
	})

	s.Run("one second older is rejected", func() {
		req := s.request(
			attestation{s.verifiers[0], s.ts(-variance - 1)},
			attestation{s.verifiers[1], s.ts(-variance)},
		)
		_, err := s.validator.Validate(s.now, s.settings, req)
		s.True(models.HasReason(err, models.ReasonNotVerified))
	})

	s.Run("future timestamps are rejected", func() {
		req := s.request(
			attestation{s.verifiers[0], s.ts(1)},
			attestation{s.verifiers[1], s.ts(0)},
		)
		_, err := s.validator.Validate(s.now, s.settings, req)
		s.True(models.HasReason(err, models.ReasonNotVerified))
	})

	s.Run("zero variance accepts only the current second", func() {
		strict, err := s.settings.WithTimestampVariance(0)
		s.Require().NoError(err)
		req := s.request(
			attestation{s.verifiers[0], s.ts(0)},
			attestation{s.verifiers[1], s.ts(0)},
		)
		_, err = s.validator.Validate(s.now, strict, req)
		s.NoError(err)
	})
}

func (s *QuorumSuite) TestShapeChecks() {
	base := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
	)

	s.Run("mismatched component lengths", func() {
		req := *base
		req.S = req.S[:1]
		_, err := s.validator.Validate(s.now, s.settings, &req)
		s.True(models.HasReason(err, models.ReasonSignaturesDifferentLengths))
	})

	s.Run("mismatched timestamp length", func() {
		req := *base
		req.Timestamps = append([]uint64{}, req.Timestamps[0])
		_, err := s.validator.Validate(s.now, s.settings, &req)
		s.True(models.HasReason(err, models.ReasonSignaturesDifferentLengths))
	})

	s.Run("fewer attestations than required", func() {
		req := s.request(attestation{s.verifiers[0], s.ts(-10)})
		_, err := s.validator.Validate(s.now, s.settings, req)
		s.True(models.HasReason(err, models.ReasonIncorrectSignatures))
	})

	s.Run("more attestations than the cap", func() {
		atts := make([]attestation, models.MaxVerifiers+1)
		for i := range atts {
			atts[i] = attestation{s.verifiers[i%3], s.ts(-1)}
		}
		_, err := s.validator.Validate(s.now, s.settings, s.request(atts...))
		s.True(models.HasReason(err, models.ReasonIncorrectSignatures))
	})

	s.Run("zero timestamp", func() {
		req := *base
		req.Timestamps = []uint64{0, req.Timestamps[1]}
		_, err := s.validator.Validate(s.now, s.settings, &req)
		s.True(models.HasReason(err, models.ReasonIncorrectTimestamps))
	})
}

func (s *QuorumSuite) TestMalformedSurplusSignatureIsSkipped() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
		attestation{s.verifiers[2], s.ts(-1)},
	)
	req.V[2] = 29

	result, err := s.validator.Validate(s.now, s.settings, req)
	s.Require().NoError(err)
	s.Len(result.Accepted, 2)
	s.Require().Len(result.Skipped, 1)
	s.Equal(models.SkipMalformed, result.Skipped[0].Cause)
	s.Equal(2, result.Skipped[0].Index)
}

func (s *QuorumSuite) TestHighSSignatureIsSkipped() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
		attestation{s.verifiers[2], s.ts(-1)},
	)
	req.S[0] = [32]byte{0xff, 0xff, 0xff, 0xff}

	result, err := s.validator.Validate(s.now, s.settings, req)
	s.Require().NoError(err)
	s.Len(result.Accepted, 2)
	s.Equal(models.SkipMalformed, result.Skipped[0].Cause)
}

func (s *QuorumSuite) TestMalformedSignatureReportedWhenQuorumMissed() {
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
	)
	req.V[1] = 3

	_, err := s.validator.Validate(s.now, s.settings, req)
	s.True(models.HasReason(err, models.ReasonInvalidSignature))
}

func (s *QuorumSuite) TestRecoverOverride() {
	boom := models.Fail(models.ReasonInvalidSignature, "stub")
	v := New(WithRecover(func(signature.Hash, models.Signature) (id.Address, error) {
		return id.Address{}, boom
	}))
	req := s.request(
		attestation{s.verifiers[0], s.ts(-10)},
		attestation{s.verifiers[1], s.ts(-5)},
	)

	_, err := v.Validate(s.now, s.settings, req)
	s.True(errors.Is(err, boom))
}
