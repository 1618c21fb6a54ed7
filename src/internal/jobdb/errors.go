package jobdb

import (
	"fmt"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// JobNotFoundError is returned when a job id does not resolve to a row.
type JobNotFoundError struct {
	ID JobID
}

func (err *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %q not found", err.ID)
}

func (err *JobNotFoundError) Is(other error) bool {
	_, ok := other.(*JobNotFoundError)
	return ok
}

func (err *JobNotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// CommandNotFoundError is returned when a command id does not resolve to a row.
type CommandNotFoundError struct {
	ID CommandID
}

func (err *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command id=%d not found", err.ID)
}

func (err *CommandNotFoundError) Is(other error) bool {
	_, ok := other.(*CommandNotFoundError)
	return ok
}

func (err *CommandNotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// JobAlreadyExistsError is returned by CreateJob when the id is taken.
type JobAlreadyExistsError struct {
	ID JobID
}

func (err *JobAlreadyExistsError) Error() string {
	return fmt.Sprintf("job %q already exists", err.ID)
}

func (err *JobAlreadyExistsError) GRPCStatus() *status.Status {
	return status.New(codes.AlreadyExists, err.Error())
}

// ErrInvalidPercent is returned for a command percent outside 0-100.
var ErrInvalidPercent = errors.New("percent complete must be between 0 and 100")
