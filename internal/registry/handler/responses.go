package handler

import (
	"time"

	"idregistry/internal/audit"
	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
)

// RegisterResponse is the HTTP response for POST /v1/registrations.
type RegisterResponse struct {
	Address           id.Address   `json:"address"`
	UniqueUserID      id.Address   `json:"unique_user_id"`
	RegisterTime      int64        `json:"register_time"`
	Voided            []id.Address `json:"voided"`
	AcceptedVerifiers []id.Address `json:"accepted_verifiers"`
	NotificationID    string       `json:"notification_id,omitempty"`
}

func FromRegisterResult(result *models.RegisterResult) *RegisterResponse {
	subject := result.Plan.SubjectRecord()
	resp := &RegisterResponse{
		Address:           subject.Address,
		UniqueUserID:      subject.UniqueUserID,
		RegisterTime:      unixOrZero(subject.RegisterTime),
		Voided:            append([]id.Address{}, result.Plan.Voided...),
		AcceptedVerifiers: make([]id.Address, 0, len(result.Quorum.Accepted)),
		NotificationID:    result.NotificationID,
	}
	for _, a := range result.Quorum.Accepted {
		resp.AcceptedVerifiers = append(resp.AcceptedVerifiers, a.Verifier)
	}
	return resp
}

// RegistrationResponse mirrors a stored record.
type RegistrationResponse struct {
	Address      id.Address `json:"address"`
	UniqueUserID id.Address `json:"unique_user_id"`
	RegisterTime int64      `json:"register_time"`
	AddressVoid  bool       `json:"address_void"`
}

func FromRegistration(addr id.Address, r *models.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		Address:      addr,
		UniqueUserID: r.UniqueUserID,
		RegisterTime: unixOrZero(r.RegisterTime),
		AddressVoid:  r.AddressVoid,
	}
}

type VerifiedResponse struct {
	Address  id.Address `json:"address"`
	Verified bool       `json:"verified"`
}

type UniqueIDResponse struct {
	Address      id.Address `json:"address"`
	UniqueUserID id.Address `json:"unique_user_id"`
}

type HasUniqueIDResponse struct {
	Address         id.Address `json:"address"`
	HasUniqueUserID bool       `json:"has_unique_user_id"`
}

// SettingsResponse is the public view of the verifier configuration.
type SettingsResponse struct {
	Version                              uint64       `json:"version"`
	Context                              string       `json:"context"`
	Verifiers                            []id.Address `json:"verifiers"`
	RequiredVerifications                int          `json:"required_verifications"`
	RegistrationPeriodSeconds            int64        `json:"registration_period_seconds"`
	VerificationTimestampVarianceSeconds int64        `json:"verification_timestamp_variance_seconds"`
}

func FromSettings(s *models.Settings) *SettingsResponse {
	return &SettingsResponse{
		Version:                              s.Version,
		Context:                              s.Context.Hex(),
		Verifiers:                            append([]id.Address{}, s.Verifiers...),
		RequiredVerifications:                s.RequiredVerifications,
		RegistrationPeriodSeconds:            int64(s.RegistrationPeriod / time.Second),
		VerificationTimestampVarianceSeconds: int64(s.TimestampVariance / time.Second),
	}
}

// AuditResponse lists the audit trail of one subject.
type AuditResponse struct {
	Subject string        `json:"subject"`
	Events  []audit.Event `json:"events"`
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
