package mapdb

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapNotFoundError is returned when a dataset id does not resolve to a row.
type MapNotFoundError struct {
	ID MapID
}

func (err *MapNotFoundError) Error() string {
	return fmt.Sprintf("map id=%d not found", err.ID)
}

func (err *MapNotFoundError) Is(other error) bool {
	_, ok := other.(*MapNotFoundError)
	return ok
}

func (err *MapNotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// FolderNotFoundError is returned when a folder id does not resolve to a row.
type FolderNotFoundError struct {
	ID FolderID
}

func (err *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder id=%d not found", err.ID)
}

func (err *FolderNotFoundError) Is(other error) bool {
	_, ok := other.(*FolderNotFoundError)
	return ok
}

func (err *FolderNotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// UserNotFoundError is returned when a user id does not resolve to a row.
type UserNotFoundError struct {
	ID UserID
}

func (err *UserNotFoundError) Error() string {
	return fmt.Sprintf("user id=%d not found", err.ID)
}

func (err *UserNotFoundError) Is(other error) bool {
	_, ok := other.(*UserNotFoundError)
	return ok
}

func (err *UserNotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// FolderCycleError is returned by ReparentFolder when the move would make a folder its own
// ancestor.
type FolderCycleError struct {
	Folder, NewParent FolderID
}

func (err *FolderCycleError) Error() string {
	return fmt.Sprintf("cannot move folder %d under %d: %d is inside %d", err.Folder, err.NewParent, err.NewParent, err.Folder)
}

func (err *FolderCycleError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, err.Error())
}

// BadRequestError classifies input that cannot name a record: empty, or naming more than one.
type BadRequestError struct {
	Table, Input, Reason string
}

func (err *BadRequestError) Error() string {
	return fmt.Sprintf("bad %s reference %q: %s", err.Table, err.Input, err.Reason)
}

func (err *BadRequestError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, err.Error())
}

// NotFoundError is returned when input names no record.
type NotFoundError struct {
	Table, Input string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("no %s record matches %q", err.Table, err.Input)
}

func (err *NotFoundError) Is(other error) bool {
	_, ok := other.(*NotFoundError)
	return ok
}

func (err *NotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, err.Error())
}

// MalformedTagError is returned when structured data embedded in a dataset's tags cannot be
// parsed.
type MalformedTagError struct {
	MapID MapID
	Tag   string
	Err   error
}

func (err *MalformedTagError) Error() string {
	return fmt.Sprintf("map id=%d: malformed %q tag: %v", err.MapID, err.Tag, err.Err)
}

func (err *MalformedTagError) Unwrap() error {
	return err.Err
}

func (err *MalformedTagError) GRPCStatus() *status.Status {
	return status.New(codes.DataLoss, err.Error())
}
