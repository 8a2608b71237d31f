package rpc

import (
	"blobgw/internal/core"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain of failures raised by this service.
const ErrorDomain = "blobgw"

// ErrorInfo reasons, one per gateway error kind.
const (
	ReasonMissingScope       = "MISSING_SCOPE"
	ReasonInvalidKey         = "INVALID_KEY"
	ReasonNotFound           = "NOT_FOUND"
	ReasonBackendWriteFailed = "BACKEND_WRITE_FAILED"
	ReasonBackendReadFailed  = "BACKEND_READ_FAILED"
	ReasonUnknown            = "UNKNOWN"
)

func reasonFor(err error) string {
	switch core.KindOf(err) {
	case core.ErrMissingScope:
		return ReasonMissingScope
	case core.ErrInvalidKey:
		return ReasonInvalidKey
	case core.ErrNotFound:
		return ReasonNotFound
	case core.ErrBackendWrite:
		return ReasonBackendWriteFailed
	case core.ErrBackendRead:
		return ReasonBackendReadFailed
	default:
		return ReasonUnknown
	}
}

// toStatus translates a gateway error into the transport status. Every kind
// maps to codes.Unknown with the error text as message; the kind travels as
// the reason of an ErrorInfo detail.
func toStatus(err error) error {
	st := status.New(codes.Unknown, err.Error())
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: reasonFor(err),
		Domain: ErrorDomain,
	})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// Reason extracts the ErrorInfo reason from an error returned by this
// service. It returns "" when err carries none.
func Reason(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}
