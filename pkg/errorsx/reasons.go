package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonInvalidSegment  ReasonCode = "invalid_segment"
	ReasonVocabularyEmpty ReasonCode = "vocabulary_empty"

	ReasonTransportConnect ReasonCode = "transport_connect"
	ReasonTransportRecv    ReasonCode = "transport_recv"
	ReasonTransportSend    ReasonCode = "transport_send"
	ReasonTransportDecode  ReasonCode = "transport_decode"

	ReasonRPCUnknownProc    ReasonCode = "rpc_unknown_proc"
	ReasonRPCInvalidPayload ReasonCode = "rpc_invalid_payload"
	ReasonRPCInvoke         ReasonCode = "rpc_invoke"
	ReasonRPCTimeout        ReasonCode = "rpc_timeout"

	ReasonAgentDecide      ReasonCode = "agent_decide"
	ReasonAgentCircuitOpen ReasonCode = "agent_circuit_open"
)
