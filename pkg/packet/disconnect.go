package packet

// SerializeDisconnect encodes a DISCONNECT packet into buf.
// MQTT 3.1.1 Section 3.14
func SerializeDisconnect(buf []byte) (int, error) {
	return serializeZero(buf, TypeDisconnect)
}
