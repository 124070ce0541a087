package session

// Topics exchanged with the peer.
const (
	TopicReady            = "READY"
	TopicHeartbeat        = "heartbeat"
	TopicJoystickPos      = "joystickPos"
	TopicGear             = "gear"
	TopicLights           = "lights"
	TopicWarn             = "warn"
	TopicHorn             = "horn"
	TopicTilt             = "kantelung"
	TopicSpeed            = "wheelchair_speed"
	TopicJoystickSettings = "joystick_settings"
)

// OperatingTopics are subscribed once the handshake completed.
var OperatingTopics = []string{
	TopicHeartbeat,
	TopicJoystickPos,
	TopicGear,
	TopicLights,
	TopicWarn,
	TopicHorn,
	TopicTilt,
}
