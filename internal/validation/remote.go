package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
	"github.com/medbook/go-gpc/pkg/circuitbreaker"
)

// Issue severities reported by the remote conformance service.
const (
	IssueSeverityFatal   = "fatal"
	IssueSeverityError   = "error"
	IssueSeverityWarning = "warning"
)

// Issue is a single conformance problem reported by the remote profile
// validation service.
type Issue struct {
	Severity string
	Detail   string
}

// RemoteProfileValidator checks a candidate appointment against its declared
// structure definitions. Implementations must be safe for concurrent use.
type RemoteProfileValidator interface {
	Validate(ctx context.Context, appointment *stu3.Appointment) ([]Issue, error)
}

// RemoteClientConfig holds configuration for the HTTP conformance client.
type RemoteClientConfig struct {
	// BaseURL is the conformance service root, e.g. http://terminology:8080/fhir
	BaseURL string
	// Timeout bounds a single validation round trip
	Timeout time.Duration
}

// DefaultRemoteClientConfig returns defaults for a co-located conformance service.
func DefaultRemoteClientConfig() RemoteClientConfig {
	return RemoteClientConfig{
		BaseURL: "http://localhost:8090/fhir",
		Timeout: 5 * time.Second,
	}
}

// RemoteClient is the HTTP implementation of RemoteProfileValidator. It POSTs
// the candidate resource to the service's $validate endpoint and maps the
// returned OperationOutcome issues. Calls run through a circuit breaker so a
// flapping conformance service trips open instead of stalling every booking.
type RemoteClient struct {
	config  RemoteClientConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewRemoteClient creates a conformance service client.
func NewRemoteClient(cfg RemoteClientConfig, logger *zap.Logger) (*RemoteClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteClientConfig().Timeout
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("profile-validator"), logger)
	if err != nil {
		return nil, fmt.Errorf("create breaker: %w", err)
	}

	return &RemoteClient{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
		tracer:  otel.Tracer("profile-validator"),
	}, nil
}

// Validate posts the appointment to the conformance service and returns its
// issues. Transport and protocol failures are returned as errors; the caller
// converts them into a single fault rather than failing validation outright.
func (c *RemoteClient) Validate(ctx context.Context, appointment *stu3.Appointment) ([]Issue, error) {
	ctx, span := c.tracer.Start(ctx, "remote_profile_validate",
		trace.WithAttributes(attribute.String("base_url", c.config.BaseURL)))
	defer span.End()

	body, err := json.Marshal(appointment)
	if err != nil {
		return nil, fmt.Errorf("marshal appointment: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome := result.(*stu3.OperationOutcome)
	issues := make([]Issue, 0, len(outcome.Issue))
	for _, issue := range outcome.Issue {
		switch issue.Severity {
		case IssueSeverityFatal, IssueSeverityError, IssueSeverityWarning:
			issues = append(issues, Issue{Severity: issue.Severity, Detail: issue.Diagnostics})
		}
	}
	span.SetAttributes(attribute.Int("issue_count", len(issues)))
	return issues, nil
}

func (c *RemoteClient) post(ctx context.Context, body []byte) (*stu3.OperationOutcome, error) {
	url := c.config.BaseURL + "/Appointment/$validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	// $validate reports problems in the body with either a 200 or a 4xx.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("validation service returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var outcome stu3.OperationOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("decode OperationOutcome: %w", err)
	}
	return &outcome, nil
}
