// Package otel exports the engine counter table as OpenTelemetry
// observable counters. The engine keeps counting with plain atomics; the
// exporter snapshots on each collection callback, so the hot paths never
// touch an otel instrument directly.
package otel

import (
	"context"
	"errors"
	"fmt"

	tokengate "github.com/macropulse/tokengate"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tokengate.MetricsSnapshot
	AuditDropped() uint64
}

// CounterDef binds one engine counter to an exported instrument name.
type CounterDef struct {
	ID   tokengate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter.
var CounterDefs = []CounterDef{
	{ID: tokengate.MetricLoginSuccess, Name: "tokengate_login_success_total", Help: "Successful login attempts."},
	{ID: tokengate.MetricLoginFailure, Name: "tokengate_login_failure_total", Help: "Failed login attempts."},
	{ID: tokengate.MetricRegisterSuccess, Name: "tokengate_register_success_total", Help: "Completed registrations."},
	{ID: tokengate.MetricRefreshSuccess, Name: "tokengate_refresh_success_total", Help: "Access tokens minted via refresh."},
	{ID: tokengate.MetricRefreshFailure, Name: "tokengate_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: tokengate.MetricValidateAccepted, Name: "tokengate_validate_accepted_total", Help: "Tokens accepted by the validation pipeline."},
	{ID: tokengate.MetricValidateRejected, Name: "tokengate_validate_rejected_total", Help: "Tokens rejected by any validation step."},
	{ID: tokengate.MetricRejectDecode, Name: "tokengate_reject_decode_total", Help: "Rejections at the decode step."},
	{ID: tokengate.MetricRejectBlacklisted, Name: "tokengate_reject_blacklisted_total", Help: "Rejections at the blacklist step."},
	{ID: tokengate.MetricRejectNotRegistered, Name: "tokengate_reject_not_registered_total", Help: "Rejections for absent or superseded live records."},
	{ID: tokengate.MetricRejectExpired, Name: "tokengate_reject_expired_total", Help: "Rejections at the expiry step."},
	{ID: tokengate.MetricRejectPrincipal, Name: "tokengate_reject_principal_total", Help: "Rejections for inactive or missing principals."},
	{ID: tokengate.MetricRejectBackend, Name: "tokengate_reject_backend_total", Help: "Fail-closed rejections on backend faults."},
	{ID: tokengate.MetricRevokeSuccess, Name: "tokengate_revoke_success_total", Help: "Blacklist markers written."},
	{ID: tokengate.MetricRevokeNoop, Name: "tokengate_revoke_noop_total", Help: "Revocations with nothing to revoke."},
	{ID: tokengate.MetricSubjectCleared, Name: "tokengate_subject_cleared_total", Help: "Administrative subject clears."},
}

type observedCounter struct {
	id         tokengate.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter bridges one engine to one meter until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers observable counters for the engine.
func NewExporter(meter metric.Meter, engine *tokengate.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers observable counters for any snapshot
// source, which tests substitute.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(CounterDefs)),
	}

	observables := make([]metric.Observable, 0, len(CounterDefs)+1)
	for _, def := range CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"tokengate_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
