package protocol

// Code is one of the closed set of protocol error codes.
type Code string

const (
	CodeInvalidCommand        Code = "INVALID_COMMAND"
	CodeInvalidRelayNumber    Code = "INVALID_RELAY_NUMBER"
	CodeInvalidParameter      Code = "INVALID_PARAMETER"
	CodeInvalidParameterCount Code = "INVALID_PARAMETER_COUNT"
	CodeHardwareError         Code = "HARDWARE_ERROR"
	CodeBufferOverflow        Code = "BUFFER_OVERFLOW"
	CodeTimeout               Code = "TIMEOUT"
	CodeSaveFailed            Code = "SAVE_FAILED"
	CodeLoadFailed            Code = "LOAD_FAILED"
	CodeNoSavedState          Code = "NO_SAVED_STATE"
	CodeClearFailed           Code = "CLEAR_FAILED"
)

// Canonical success responses.
const (
	ResponseOK      = "OK"
	ResponsePong    = "PONG"
	ResponseSaved   = "SAVED"
	ResponseLoaded  = "LOADED"
	ResponseCleared = "CLEARED"
)

// ErrorResponse formats a code for the wire, without the line terminator.
func ErrorResponse(c Code) string {
	return "ERROR:" + string(c)
}
