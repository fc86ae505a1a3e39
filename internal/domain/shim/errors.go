package shim

// Error codes carried by apperrors.AppError across the shim domain.
const (
	CodeInvalidInput      = "invalid_input"
	CodeUnknownShim       = "unknown_shim"
	CodeUnknownDataType   = "unknown_data_type"
	CodeAccountNotFound   = "account_not_found"
	CodeAccountIncomplete = "account_incomplete"
	CodeAccountError      = "account_error"
	CodeTransportFailure  = "transport_failure"
	CodeMalformedResponse = "malformed_vendor_response"
	// CodeDefect marks states that earlier validation should have made unreachable.
	CodeDefect = "defect"
)
