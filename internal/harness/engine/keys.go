package engine

// InternalStepOutput holds a copy of the last step's outputs.
const InternalStepOutput = "__step_output"

// Checker names as they appear in scenario expectations.
const (
	CheckerNameDefault              = "default"
	CheckerNameValueGreaterThan     = "value_greater_than"
	CheckerNameValueLessThan        = "value_less_than"
	CheckerNameValueInRange         = "value_in_range"
	CheckerNamePayloadContains      = "payload_contains"
	CheckerNameSaveAs               = "save_as"
	CheckerNameErrorMessageContains = "error_message_contains"
	CheckerNameCodeClass            = "code_class"
)

// Output keys the standard checkers read.
const (
	KeyValue   = "value"
	KeyPayload = "payload"
	KeyCode    = "code"
	KeyError   = "error"
)
