package service

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorizedTrigger rejects a batch trigger whose credential does not match.
	ErrUnauthorizedTrigger = errors.New("unauthorized trigger")
	// ErrAccountForbidden is returned when an account does not belong to the caller's session.
	ErrAccountForbidden = errors.New("account does not belong to this session")
	// ErrPublishTimeout means the container never left IN_PROGRESS within the poll budget.
	ErrPublishTimeout = errors.New("publish timeout")
	// ErrNoCreationID is returned when the container endpoint answers without an id.
	ErrNoCreationID = errors.New("no creation id returned")
)

// Failure reasons persisted with FAILED posts.
const (
	ReasonPublishTimeout          = "PublishTimeout"
	ReasonRemoteProcessingError   = "RemoteProcessingError"
	ReasonRemoteTransientError    = "RemoteTransientError"
	ReasonRemoteNonTransientError = "RemoteNonTransientError"
	ReasonCredentialError         = "CredentialError"
	ReasonCanceled                = "Canceled"
	ReasonInternalError           = "InternalError"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// GraphError is a decoded Graph API error body. IsTransient carries the platform's
// own flag; for bodies that are not Graph errors it is derived from the HTTP status.
type GraphError struct {
	HTTPStatus  int
	Message     string
	Type        string
	Code        int
	Subcode     int
	IsTransient bool
	FbtraceID   string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph api error (http %d, code %d/%d): %s", e.HTTPStatus, e.Code, e.Subcode, e.Message)
}

// RemoteError is returned by RemoteCaller once it gives up on a call.
type RemoteError struct {
	Op        string
	Attempts  int
	Transient bool
	LastErr   error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.LastErr)
}

func (e *RemoteError) Unwrap() error {
	return e.LastErr
}

// RemoteProcessingError means the platform reported the container as failed.
type RemoteProcessingError struct {
	ContainerID string
	Status      string
	Polls       int
}

func (e *RemoteProcessingError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("container %s failed processing after %d poll(s)", e.ContainerID, e.Polls)
	}
	return fmt.Sprintf("container %s failed processing after %d poll(s): %s", e.ContainerID, e.Polls, e.Status)
}

// failureReason maps an orchestration error onto one of the persisted reason codes.
func failureReason(err error) string {
	var (
		remoteErr     *RemoteError
		processingErr *RemoteProcessingError
	)
	switch {
	case errors.Is(err, ErrPublishTimeout):
		return ReasonPublishTimeout
	case errors.As(err, &processingErr):
		return ReasonRemoteProcessingError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.As(err, &remoteErr):
		if remoteErr.Transient {
			return ReasonRemoteTransientError
		}
		return ReasonRemoteNonTransientError
	default:
		return ReasonInternalError
	}
}
