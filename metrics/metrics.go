// Package metrics counts the control-plane calls made during a deploy run and
// produces the final run report.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Call identifies a kind of control-plane request.
type Call string

// Control-plane calls issued by the deployer.
const (
	CallListDomains    Call = "sagemaker:ListDomains"
	CallDescribeDomain Call = "sagemaker:DescribeDomain"
	CallListTags       Call = "sagemaker:ListTags"
	CallGetParameter   Call = "ssm:GetParameter"
	CallCreatePipeline Call = "sagemaker:CreatePipeline"
	CallUpdatePipeline Call = "sagemaker:UpdatePipeline"
	CallAddTags        Call = "sagemaker:AddTags"
	CallPutObject      Call = "s3:PutObject"
	CallHeadObject     Call = "s3:HeadObject"
	CallListObjects    Call = "s3:ListObjectsV2"
	CallSimulatePolicy Call = "iam:SimulatePrincipalPolicy"
)

// Metrics collects call counters for one run. A nil *Metrics is valid and
// records nothing, so components can be used without a collector.
type Metrics struct {
	mu    sync.RWMutex
	calls map[Call]*int64

	failedLookups int64 // parameter-store lookups downgraded to ""

	startTime time.Time
}

// NewMetrics creates a new Metrics instance with initialized counters
func NewMetrics() *Metrics {
	return &Metrics{
		calls:     make(map[Call]*int64),
		startTime: time.Now(),
	}
}

// RecordCall increments the counter for one control-plane call
func (m *Metrics) RecordCall(c Call) {
	if m == nil {
		return
	}
	m.mu.RLock()
	counter, ok := m.calls[c]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if counter, ok = m.calls[c]; !ok {
			counter = new(int64)
			m.calls[c] = counter
		}
		m.mu.Unlock()
	}
	atomic.AddInt64(counter, 1)
}

// RecordFailedLookup increments the failed parameter lookup counter
func (m *Metrics) RecordFailedLookup() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.failedLookups, 1)
}

// Calls returns the number of recorded calls of the given kind
func (m *Metrics) Calls(c Call) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if counter, ok := m.calls[c]; ok {
		return atomic.LoadInt64(counter)
	}
	return 0
}

// FailedLookups returns the number of parameter lookups that produced ""
func (m *Metrics) FailedLookups() int64 {
	if m == nil {
		return 0
	}
	return atomic.LoadInt64(&m.failedLookups)
}

// Report is the summary printed at the end of a deploy run.
type Report struct {
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
	Duration      time.Duration    `json:"duration"`
	PipelineName  string           `json:"pipelineName"`
	PipelineARN   string           `json:"pipelineArn,omitempty"`
	Action        string           `json:"action"`
	Calls         map[string]int64 `json:"calls"`
	FailedLookups int64            `json:"failedParameterLookups"`
}

// GenerateReport snapshots the counters into a Report. The caller fills in
// the pipeline fields.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	report := Report{
		StartTime: m.startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(m.startTime),
		Calls:     make(map[string]int64),
	}

	m.mu.RLock()
	for c, counter := range m.calls {
		report.Calls[string(c)] = atomic.LoadInt64(counter)
	}
	m.mu.RUnlock()
	report.FailedLookups = atomic.LoadInt64(&m.failedLookups)

	return report
}

// MarshalJSON implements json.Marshaler so the duration renders as a string
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// Render returns the report as JSON when format is "json" and as the
// human-readable string otherwise.
func (r Report) Render(format string) (string, error) {
	if format != "json" {
		return r.String(), nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return string(data), nil
}

// String returns a human-readable representation for console output
func (r Report) String() string {
	names := make([]string, 0, len(r.Calls))
	for name := range r.Calls {
		names = append(names, name)
	}
	sort.Strings(names)

	var calls strings.Builder
	for _, name := range names {
		fmt.Fprintf(&calls, "\n  %s: %d", name, r.Calls[name])
	}

	return fmt.Sprintf(
		"Pipeline %s %s in %s\n"+
			"Failed parameter lookups: %d\n"+
			"Control-plane calls:%s",
		r.PipelineName,
		r.Action,
		r.Duration,
		r.FailedLookups,
		calls.String(),
	)
}
