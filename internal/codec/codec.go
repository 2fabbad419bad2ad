package codec

import "fmt"

// Version is the only wire version this codec currently speaks.
const Version uint8 = 1

// Envelope is a decoded Event plus its framing metadata.
type Envelope struct {
	Version     uint8
	TimestampMs uint64 // low 64 bits of the wire u128 timestamp; see Encode
	Event       Event
}

type decodeFunc func(r *Reader) (Event, error)

var decoders = map[EventType]decodeFunc{
	TypeAuthEvent:            func(r *Reader) (Event, error) { return decodeAuthEvent(r) },
	TypeChallengeEvent:       func(r *Reader) (Event, error) { return decodeChallengeEvent(r) },
	TypeAuthResponse:         func(r *Reader) (Event, error) { return decodeAuthResponse(r) },
	TypeGetServersEvent:      func(r *Reader) (Event, error) { return decodeGetServersEvent(r) },
	TypeGetServersResponse:   func(r *Reader) (Event, error) { return decodeGetServersResponse(r) },
	TypeCreateServerEvent:    func(r *Reader) (Event, error) { return decodeCreateServerEvent(r) },
	TypeDeleteServerEvent:    func(r *Reader) (Event, error) { return decodeDeleteServerEvent(r) },
	TypeModifyServerEvent:    func(r *Reader) (Event, error) { return decodeModifyServerEvent(r) },
	TypeGetChannelsRequest:   func(r *Reader) (Event, error) { return decodeGetChannelsRequest(r) },
	TypeGetChannelsResponse:  func(r *Reader) (Event, error) { return decodeGetChannelsResponse(r) },
	TypeAddChannelRequest:    func(r *Reader) (Event, error) { return decodeAddChannelRequest(r) },
	TypeAddChannelResponse:   func(r *Reader) (Event, error) { return decodeAddChannelResponse(r) },
	TypeModifyChannelRequest: func(r *Reader) (Event, error) { return decodeModifyChannelRequest(r) },
	TypeModifyChannelResponse: func(r *Reader) (Event, error) {
		return decodeModifyChannelResponse(r)
	},
	TypeDeleteChannelRequest: func(r *Reader) (Event, error) { return decodeDeleteChannelRequest(r) },
	TypeDeleteChannelResponse: func(r *Reader) (Event, error) {
		return decodeDeleteChannelResponse(r)
	},
	TypeSendMessageRequest:  func(r *Reader) (Event, error) { return decodeSendMessageRequest(r) },
	TypeSendMessageResponse: func(r *Reader) (Event, error) { return decodeSendMessageResponse(r) },
	TypeGetMessagesRequest:  func(r *Reader) (Event, error) { return decodeGetMessagesRequest(r) },
	TypeGetMessagesResponse: func(r *Reader) (Event, error) { return decodeGetMessagesResponse(r) },
	TypeSubscribeRequest:    func(r *Reader) (Event, error) { return decodeSubscribeRequest(r) },
	TypeSubscribeResponse:   func(r *Reader) (Event, error) { return decodeSubscribeResponse(r) },
	TypeMessagePushEvent:    func(r *Reader) (Event, error) { return decodeMessagePushEvent(r) },
	TypeGetMembersRequest:   func(r *Reader) (Event, error) { return decodeGetMembersRequest(r) },
	TypeGetMembersResponse:  func(r *Reader) (Event, error) { return decodeGetMembersResponse(r) },
	TypePingEvent:           func(r *Reader) (Event, error) { return decodePingEvent(r) },
}

// Encode frames e as version | timestamp_ms (u128) | event_type (u16) |
// payload, per spec.md §4.1.
func Encode(timestampMs uint64, e Event) []byte {
	w := NewWriter()
	w.WriteU8(Version)
	w.WriteU128(0, timestampMs)
	w.WriteU16(uint16(e.Type()))
	e.encode(w)
	return w.Bytes()
}

// Decode parses one framed Event. It never reads past len(b); any prefix
// of a valid encoding fails cleanly with ErrShortBuffer rather than
// panicking.
func Decode(b []byte) (*Envelope, error) {
	r := NewReader(b)
	version, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("decode event: unsupported version %d", version)
	}
	_, lo, err := r.ReadU128()
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	tag, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	dec, ok := decoders[EventType(tag)]
	if !ok {
		return nil, fmt.Errorf("decode event: unknown variant tag %d", tag)
	}
	ev, err := dec(r)
	if err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &Envelope{Version: version, TimestampMs: lo, Event: ev}, nil
}
