package log

const (
	// Service
	FieldService = "service"

	// Connection
	FieldConnID     = "conn_id"
	FieldRemoteAddr = "remote_addr"
	FieldTransport  = "transport"

	// Actor
	FieldSessionID = "session_id"
	FieldUsername  = "username"

	// Chat state
	FieldRoom    = "room"
	FieldPeer    = "peer"
	FieldCommand = "command"
	FieldCount   = "count"
)
