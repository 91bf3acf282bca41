// Package workflow defines the research crews that run behind a job: the closed
// set of workflow kinds, the request each kind is configured with, and the
// catalog that maps a kind to its constructor.
package workflow

import (
	"context"
	"errors"
	"strings"
)

// Kind identifies one workflow variant.
type Kind string

const (
	KindUnknown       Kind = ""
	KindCompany       Kind = "company"
	KindIndustry      Kind = "industry"
	KindMacroeconomic Kind = "macroeconomic"
	KindTrip          Kind = "trip"
)

// Valid returns true for every kind a crew exists for.
func (k Kind) Valid() bool {
	return k == KindCompany || k == KindIndustry || k == KindMacroeconomic || k == KindTrip
}

func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

var (
	// ErrNoWorkflowSelected is returned when a request does not resolve to a known kind.
	ErrNoWorkflowSelected = errors.New("no workflow selected")

	// ErrNotConfigured is returned by Execute when Configure was never called or failed.
	ErrNotConfigured = errors.New("crew not set up")

	// ErrEmptySubject is returned when an analysis request carries no subject.
	ErrEmptySubject = errors.New("analysis subject is required")

	// ErrInvalidTrip is returned when trip parameters are incomplete.
	ErrInvalidTrip = errors.New("trip requires travel_from, travel_to, date and hobby")
)

// TripParams carries the inputs of the trip planner crew.
type TripParams struct {
	From  string `json:"travel_from"`
	To    string `json:"travel_to"`
	Date  string `json:"date"`
	Hobby string `json:"hobby"`
}

// Validate reports whether every field is present.
func (p TripParams) Validate() error {
	if strings.TrimSpace(p.From) == "" || strings.TrimSpace(p.To) == "" ||
		strings.TrimSpace(p.Date) == "" || strings.TrimSpace(p.Hobby) == "" {
		return ErrInvalidTrip
	}
	return nil
}

// Request is resolved once at submission time and handed unchanged to the crew.
type Request struct {
	Kind    Kind
	Input   string
	Subject string
	Trip    *TripParams
}

// AnalysisRequest resolves free-form input such as "company Acme" into a request.
func AnalysisRequest(input string) Request {
	kind, subject := Intent(input)
	return Request{
		Kind:    kind,
		Input:   input,
		Subject: subject,
	}
}

// TripRequest builds a trip planner request.
func TripRequest(p TripParams) Request {
	return Request{
		Kind:    KindTrip,
		Input:   strings.Join([]string{p.From, p.To, p.Date, p.Hobby}, " "),
		Subject: p.To,
		Trip:    &p,
	}
}

// Reporter is the progress sink a workflow uses to append events to its job.
// Implementations never fail the caller.
type Reporter interface {
	Report(jobID, message string)
}

// Workflow is one configured crew run.
type Workflow interface {
	Configure(req Request) error
	Execute(ctx context.Context) (string, error)
}

// Factory builds a fresh workflow bound to a job.
type Factory func(jobID string, reporter Reporter) Workflow
