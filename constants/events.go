package constants

// Event types exchanged over the event channel. Inbound types are sent by the
// client; outbound types by the server. Ack frames flow both ways.
const (
	// inbound
	EventQueryCase      = "query_case"
	EventGenerateReport = "generate_report"
	EventCancelJob      = "cancel_job"
	EventJobStatus      = "job_status"
	EventAck            = "ack"

	// outbound
	EventWelcome      = "welcome"
	EventSubmitAck    = "submit_ack"
	EventProgress     = "progress"
	EventJobStatusRes = "job_status_result"
	EventError        = "error"

	// bidirectional
	EventHeartbeat = "heartbeat"
)
