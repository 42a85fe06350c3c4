package decisionlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
)

// Entry is one decision log record.
type Entry struct {
	ID              string                       `json:"id"`
	RequestID       string                       `json:"request_id"`
	Timestamp       time.Time                    `json:"timestamp"`
	Level           config.LogLevel              `json:"level"`
	Kind            string                       `json:"kind"`
	ApplicationName string                       `json:"application_name"`
	PolicyStoreID   string                       `json:"policystore_id"`
	Action          string                       `json:"action"`
	Resource        string                       `json:"resource"`
	Principals      []string                     `json:"principals"`
	Decision        authz.Decision               `json:"decision"`
	Diagnostics     map[string]authz.Diagnostics `json:"diagnostics,omitempty"`
	Tokens          map[string]string            `json:"tokens,omitempty"`
	UserClaims      map[string]any               `json:"user_claims,omitempty"`
	WorkloadClaims  map[string]any               `json:"workload_claims,omitempty"`
	GuardViolations []string                     `json:"guard_violations,omitempty"`
	DecisionTime    time.Duration                `json:"decision_time_micro_sec"`
}

// NewEntry creates an entry with a fresh id and the current time.
func NewEntry(requestID string, level config.LogLevel) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Level:     level,
	}
}

// MarshalJSON writes the decision time in microseconds.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(&struct {
		*plain
		DecisionTime int64 `json:"decision_time_micro_sec"`
	}{
		plain:        (*plain)(e),
		DecisionTime: e.DecisionTime.Microseconds(),
	})
}

// UnmarshalJSON reads the decision time in microseconds.
func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	aux := &struct {
		*plain
		DecisionTime int64 `json:"decision_time_micro_sec"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, aux); err != nil {
		return err
	}
	e.DecisionTime = time.Duration(aux.DecisionTime) * time.Microsecond
	return nil
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", e.ID).
		Str("request_id", e.RequestID).
		Time("timestamp", e.Timestamp).
		Str("level", string(e.Level)).
		Str("kind", e.Kind).
		Str("application_name", e.ApplicationName).
		Str("policystore_id", e.PolicyStoreID).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Strs("principals", e.Principals).
		Str("decision", string(e.Decision)).
		Int64("decision_time_micro_sec", e.DecisionTime.Microseconds())
	if len(e.Diagnostics) > 0 {
		ev.Interface("diagnostics", e.Diagnostics)
	}
	if len(e.Tokens) > 0 {
		ev.Interface("tokens", e.Tokens)
	}
	if len(e.UserClaims) > 0 {
		ev.Interface("user_claims", e.UserClaims)
	}
	if len(e.WorkloadClaims) > 0 {
		ev.Interface("workload_claims", e.WorkloadClaims)
	}
	if len(e.GuardViolations) > 0 {
		ev.Strs("guard_violations", e.GuardViolations)
	}
}

// levelRank orders levels from most to least verbose.
var levelRank = map[config.LogLevel]int{
	config.LogLevelTrace: 0,
	config.LogLevelDebug: 1,
	config.LogLevelInfo:  2,
	config.LogLevelWarn:  3,
	config.LogLevelError: 4,
	config.LogLevelFatal: 5,
}

// Enabled reports whether an entry at level passes a minimum of min.
// Unknown levels pass.
func Enabled(level, min config.LogLevel) bool {
	l, ok := levelRank[level]
	if !ok {
		return true
	}
	m, ok := levelRank[min]
	if !ok {
		return true
	}
	return l >= m
}
