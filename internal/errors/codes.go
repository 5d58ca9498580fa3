package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Access control errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Object ledger errors
	CodeObjectKeyEmpty Code = "OBJECT_KEY_EMPTY"

	// Ref ledger errors
	CodeRefNameEmpty Code = "REF_NAME_EMPTY"

	// Shared store errors
	CodeOutOfRange     Code = "OUT_OF_RANGE"
	CodeLengthMismatch Code = "LENGTH_MISMATCH"

	// Repository registry errors
	CodeRepoNameEmpty Code = "REPO_NAME_EMPTY"
	CodeRepoNotFound  Code = "REPO_NOT_FOUND"
	CodeRepoExists    Code = "REPO_EXISTS"

	// Journal errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeSequenceGap Code = "SEQUENCE_GAP"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeObjectKeyEmpty,
		CodeRefNameEmpty,
		CodeLengthMismatch,
		CodeRepoNameEmpty:
		return codes.InvalidArgument

	// PermissionDenied - role check failed
	case CodeUnauthorized:
		return codes.PermissionDenied

	// OutOfRange - positional lookup beyond sequence length
	case CodeOutOfRange:
		return codes.OutOfRange

	// NotFound - missing records
	case CodeRepoNotFound,
		CodeNotFound:
		return codes.NotFound

	// AlreadyExists - conflicting creation
	case CodeRepoExists:
		return codes.AlreadyExists

	// FailedPrecondition - journal state doesn't allow operation
	case CodeSequenceGap:
		return codes.FailedPrecondition

	default:
		return codes.Internal
	}
}
