package network

// Scope is who receives a message routed through the room service.
type Scope uint8

const (
	// ScopeRelay messages are room-service control traffic, not game RPCs.
	ScopeRelay Scope = iota
	// ScopeAll reaches every member except the sender; the sender applies its
	// own copy locally.
	ScopeAll
	// ScopeAuthority reaches only the elected authority.
	ScopeAuthority
)

const (
	MsgTypeHeartbeat = 1

	MsgTypeWelcome         = 101
	MsgTypeRoster          = 102
	MsgTypeSetProperty     = 103
	MsgTypePropertyChanged = 104
	MsgTypeError           = 105

	MsgTypeRequestMeeting = 201
	MsgTypeSetPhase       = 202
	MsgTypeCastVote       = 203
	MsgTypeShowResult     = 204
	MsgTypeSyncState      = 205
)

// ScopeOf returns the delivery scope of a message type.
func ScopeOf(msgID uint16) Scope {
	switch msgID {
	case MsgTypeRequestMeeting:
		return ScopeAuthority
	case MsgTypeSetPhase, MsgTypeCastVote, MsgTypeShowResult, MsgTypeSyncState:
		return ScopeAll
	default:
		return ScopeRelay
	}
}

// AuthorityOnly reports whether only the authority may originate msgID.
func AuthorityOnly(msgID uint16) bool {
	switch msgID {
	case MsgTypeSetPhase, MsgTypeShowResult, MsgTypeSyncState:
		return true
	}
	return false
}

// MsgName is a stable label for a message type, used in logs and metrics.
func MsgName(msgID uint16) string {
	switch msgID {
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeWelcome:
		return "welcome"
	case MsgTypeRoster:
		return "roster"
	case MsgTypeSetProperty:
		return "set_property"
	case MsgTypePropertyChanged:
		return "property_changed"
	case MsgTypeError:
		return "error"
	case MsgTypeRequestMeeting:
		return "request_meeting"
	case MsgTypeSetPhase:
		return "set_phase"
	case MsgTypeCastVote:
		return "cast_vote"
	case MsgTypeShowResult:
		return "show_result"
	case MsgTypeSyncState:
		return "sync_state"
	}
	return "unknown"
}
