package errors

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Domain is reported in ErrorInfo.
const Domain = "contacts"

// ToGRPC converts e into a status error. Details attached, when relevant:
// ErrorInfo for the reason and details, BadRequest for InvalidArgument
// violations, RetryInfo for retryable codes.
func (e ErrorResponse) ToGRPC() error {
	st := status.New(e.Code, e.Message)

	var details []protoadapt.MessageV1
	if e.Reason != "" || len(e.Details) > 0 {
		details = append(details, e.errorInfo())
	}
	if e.Code == codes.InvalidArgument && len(e.Violations) > 0 {
		details = append(details, e.badRequest())
	}
	if d, ok := RetryAfter(e.Code); ok {
		details = append(details, &errdetails.RetryInfo{RetryDelay: durationpb.New(d)})
	}
	if len(details) == 0 {
		return st.Err()
	}
	if withDetails, err := st.WithDetails(details...); err == nil {
		st = withDetails
	}
	return st.Err()
}

func (e ErrorResponse) errorInfo() *errdetails.ErrorInfo {
	md := make(map[string]string, len(e.Details))
	for k, v := range e.Details {
		md[k] = v
	}
	return &errdetails.ErrorInfo{Reason: string(e.Reason), Domain: Domain, Metadata: md}
}

func (e ErrorResponse) badRequest() *errdetails.BadRequest {
	fvs := make([]*errdetails.BadRequest_FieldViolation, 0, len(e.Violations))
	for _, v := range e.Violations {
		desc := v.Description
		if desc == "" {
			desc = v.Reason
		}
		fvs = append(fvs, &errdetails.BadRequest_FieldViolation{Field: v.Field, Description: desc})
	}
	return &errdetails.BadRequest{FieldViolations: fvs}
}

// FromGRPC is the inverse of ToGRPC. Non-status errors become Unknown;
// RetryInfo is dropped since RetryAfter derives it from the code.
func FromGRPC(err error) ErrorResponse {
	st, ok := status.FromError(err)
	if !ok {
		return Unknown()
	}
	out := New(st.Message(), st.Code(), nil)
	for _, d := range st.Details() {
		switch x := d.(type) {
		case *errdetails.ErrorInfo:
			out.Reason = Reason(x.GetReason())
			out = out.WithDetails(x.GetMetadata())
		case *errdetails.BadRequest:
			for _, fv := range x.GetFieldViolations() {
				out.Violations = append(out.Violations, FieldViolation{Field: fv.GetField(), Reason: fv.GetDescription()})
			}
		}
	}
	return out
}
