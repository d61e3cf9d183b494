package runner

// Actions.
const (
	ActionListen               = "listen"
	ActionConnect              = "connect"
	ActionServe                = "serve"
	ActionExpectRequest        = "expect_request"
	ActionRespond              = "respond"
	ActionSendRequest          = "send_request"
	ActionExpectResponse       = "expect_response"
	ActionExpectNotification   = "expect_notification"
	ActionNotify               = "notify"
	ActionSetResource          = "set_resource"
	ActionRegistrations        = "registrations"
	ActionFakeClose            = "fake_close"
	ActionFakeUnclose          = "fake_unclose"
	ActionResetPeer            = "reset_peer"
	ActionWaitExchangeLifetime = "wait_exchange_lifetime"
	ActionWait                 = "wait"
	ActionVerify               = "verify"
)

// Step parameters.
const (
	ParamKind          = "kind"
	ParamPath          = "path"
	ParamContentFormat = "content_format"
	ParamAccept        = "accept"
	ParamAuto          = "auto"
	ParamCode          = "code"
	ParamLocation      = "location"
	ParamPayload       = "payload"
	ParamPayloadHex    = "payload_hex"
	ParamFile          = "file"
	ParamObserve       = "observe"
	ParamMaxAge        = "max_age"
	ParamOperation     = "operation"
	ParamArguments     = "arguments"
	ParamAttributes    = "attributes"
	ParamConfirmable   = "confirmable"
	ParamTimeout       = "timeout"
	ParamDuration      = "duration"
	ParamEndpoint      = "endpoint"
	ParamPort          = "port"
	ParamReal          = "real"
	ParamAdvance       = "advance"
	ParamAddress       = "address"
	ParamBootstrap     = "bootstrap"
)

// Step outputs.
const (
	KeyConnected     = "connected"
	KeyRemote        = "remote"
	KeyPeerState     = "peer_state"
	KeyKind          = "kind"
	KeyPath          = "path"
	KeyType          = "type"
	KeyCode          = "code"
	KeyMessageID     = "msg_id"
	KeyToken         = "token"
	KeyContentFormat = "content_format"
	KeyPayload       = "payload"
	KeyPayloadSize   = "payload_size"
	KeyLocation      = "location"
	KeyEndpoint      = "endpoint"
	KeyLifetime      = "lifetime"
	KeyObserveSeq    = "observe_seq"
	KeyMaxAge        = "max_age"
	KeyResponseCode  = "response_code"
	KeyReplayed      = "replayed"
	KeyHandled       = "handled"
	KeySent          = "sent"
	KeyCount         = "count"
	KeyEndpoints     = "endpoints"
	KeyAdvanced      = "advanced"
	KeyWaited        = "waited"
)

// Custom checkers.
const (
	CheckerRegistered   = "registered"
	CheckerUnregistered = "unregistered"
	CheckerObserving    = "observing"
)

// State keys shared between steps.
const (
	statePendingRequest = "__pending_request"
	stateLastResponse   = "__last_response"
)
