// Package apt implements the framing and message codec of the Thorlabs APT
// serial protocol as used by piezo controllers (TPZ001, KPZ101, BPC30x, MDT69xB).
//
// # Frame Layout
//
// Every message starts with a fixed 6-byte header:
//
//	byte 0-1  message ID (little endian)
//	byte 2    param1, or low byte of the data length
//	byte 3    param2, or high byte of the data length
//	byte 4    destination endpoint (bit 7 set when a data packet follows)
//	byte 5    source endpoint
//
// Header-only messages carry their arguments in param1/param2. Messages with
// a data packet set bit 7 of the destination byte and use bytes 2-3 as the
// length of the packet that immediately follows the header. All multi-byte
// fields inside data packets are little endian.
//
// # Channels
//
// Channel identifiers on the wire are 1-based. The helpers in this package
// take the wire value; callers working with 0-based indices convert with
// [ChanIdent].
//
// # Usage
//
//	frame, err := apt.ReadFrame(port)
//	if err != nil {
//	    return err
//	}
//	msg, err := apt.Decode(frame)
//	if err != nil {
//	    // malformed frame
//	}
//	switch p := msg.Payload().(type) {
//	case *apt.OutputPos:
//	    fmt.Println(p.Position)
//	}
package apt
