package monitor

import (
	"errors"
	"fmt"
)

var (
	ErrBatchFetch     = errors.New("batch fetch")
	ErrNoProducts     = errors.New("no tracked products")
	ErrPassInProgress = errors.New("monitoring pass already in progress")

	ErrScrape     = errors.New("scrape")
	ErrPersist    = errors.New("persist")
	ErrDispatch   = errors.New("dispatch")
	ErrUnexpected = errors.New("unexpected")

	errEmptyScrape = errors.New("empty scrape result")
)

type Stage string

const (
	StageScrape     Stage = "scrape"
	StagePersist    Stage = "persist"
	StageDispatch   Stage = "dispatch"
	StageUnexpected Stage = "unexpected"
)

func (s Stage) String() string {
	return string(s)
}

func (s Stage) sentinel() error {
	switch s {
	case StageScrape:
		return ErrScrape
	case StagePersist:
		return ErrPersist
	case StageDispatch:
		return ErrDispatch
	default:
		return ErrUnexpected
	}
}

// ProductError is a failure contained within one product's pipeline. It
// matches the sentinel of its stage with errors.Is.
type ProductError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *ProductError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *ProductError) Unwrap() []error {
	return []error{e.Stage.sentinel(), e.Err}
}
