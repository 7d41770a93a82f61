package syncer

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Result is the outcome of one unit invocation.
type Result int

const (
	Success Result = iota
	Retry
	PermanentFailure
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Classify maps an error to a Result. Only a permission problem is final;
// unavailability, missing preconditions and unknown failures are retried.
func Classify(err error) Result {
	if err == nil {
		return Success
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return PermanentFailure
	default:
		return Retry
	}
}
