package codec

// EventType is the opaque wire tag assigned in declaration order, starting
// at 0. New variants must be appended; existing tags never change.
type EventType uint16

const (
	TypeAuthEvent EventType = iota
	TypeChallengeEvent
	TypeAuthResponse
	TypeGetServersEvent
	TypeGetServersResponse
	TypeCreateServerEvent
	TypeDeleteServerEvent
	TypeModifyServerEvent
	TypeGetChannelsRequest
	TypeGetChannelsResponse
	TypeAddChannelRequest
	TypeAddChannelResponse
	TypeModifyChannelRequest
	TypeModifyChannelResponse
	TypeDeleteChannelRequest
	TypeDeleteChannelResponse
	// Appended beyond the original 16 — message/member/subscription events
	// the source declared but left unimplemented (spec.md §9 Design Notes,
	// open question (b)). Tag order among these is fixed once assigned,
	// exactly as for the first 16.
	TypeSendMessageRequest
	TypeSendMessageResponse
	TypeGetMessagesRequest
	TypeGetMessagesResponse
	TypeSubscribeRequest
	TypeSubscribeResponse
	TypeMessagePushEvent
	TypeGetMembersRequest
	TypeGetMembersResponse
	TypePingEvent
)

// Event is implemented by every wire record that can appear as an Event
// payload.
type Event interface {
	Type() EventType
	encode(w *Writer)
}

// ServerInfo is one server summary, used in GetServersResponse.
type ServerInfo struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
	Name         string
	Icon         []byte
	Joined       bool
}

func (s *ServerInfo) encode(w *Writer) {
	w.WriteFixed(s.ServerID[:])
	w.WriteFixed(s.ServerPubkey[:])
	w.WriteString(s.Name)
	w.WriteBytes(s.Icon)
	w.WriteBool(s.Joined)
}

func decodeServerInfo(r *Reader) (ServerInfo, error) {
	var s ServerInfo
	id, err := r.ReadFixed(8)
	if err != nil {
		return s, err
	}
	copy(s.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return s, err
	}
	copy(s.ServerPubkey[:], pk)
	if s.Name, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.Icon, err = r.ReadBytes(); err != nil {
		return s, err
	}
	if s.Joined, err = r.ReadBool(); err != nil {
		return s, err
	}
	return s, nil
}

// ChannelInfo is one channel summary.
type ChannelInfo struct {
	ChannelID   uint64
	Name        string
	Description string
}

func (c *ChannelInfo) encode(w *Writer) {
	w.WriteU64(c.ChannelID)
	w.WriteString(c.Name)
	w.WriteString(c.Description)
}

func decodeChannelInfo(r *Reader) (ChannelInfo, error) {
	var c ChannelInfo
	var err error
	if c.ChannelID, err = r.ReadU64(); err != nil {
		return c, err
	}
	if c.Name, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.Description, err = r.ReadString(); err != nil {
		return c, err
	}
	return c, nil
}

// MemberInfo is one member summary, used in GetMembersResponse.
type MemberInfo struct {
	UserPubkey     [32]byte
	AuthFlags      uint64
	JoinTimeMs     uint64
	ModifiedTimeMs uint64
	Username       string
	Bio            string
	Avatar         []byte
}

func (m *MemberInfo) encode(w *Writer) {
	w.WriteFixed(m.UserPubkey[:])
	w.WriteU64(m.AuthFlags)
	w.WriteU64(m.JoinTimeMs)
	w.WriteU64(m.ModifiedTimeMs)
	w.WriteString(m.Username)
	w.WriteString(m.Bio)
	w.WriteBytes(m.Avatar)
}

func decodeMemberInfo(r *Reader) (MemberInfo, error) {
	var m MemberInfo
	pk, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.UserPubkey[:], pk)
	if m.AuthFlags, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.JoinTimeMs, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.ModifiedTimeMs, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.Username, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Bio, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Avatar, err = r.ReadBytes(); err != nil {
		return m, err
	}
	return m, nil
}

// MessageInfo is one posted message, annotated with the author's profile.
type MessageInfo struct {
	Seqno        uint64
	Payload      []byte
	Signature    [64]byte
	MsgType      uint8 // 0 = Text, 1 = Binary
	ServerPubkey [32]byte
	ServerID     [8]byte
	ChannelID    uint64
	TimestampMs  uint64
	UserPubkey   [32]byte
	Nonce        uint16
	Username     string
}

func (m *MessageInfo) encode(w *Writer) {
	w.WriteU64(m.Seqno)
	w.WriteBytes(m.Payload)
	w.WriteFixed(m.Signature[:])
	w.WriteU8(m.MsgType)
	w.WriteFixed(m.ServerPubkey[:])
	w.WriteFixed(m.ServerID[:])
	w.WriteU64(m.ChannelID)
	w.WriteU64(m.TimestampMs)
	w.WriteFixed(m.UserPubkey[:])
	w.WriteU16(m.Nonce)
	w.WriteString(m.Username)
}

func decodeMessageInfo(r *Reader) (MessageInfo, error) {
	var m MessageInfo
	var err error
	if m.Seqno, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.Payload, err = r.ReadBytes(); err != nil {
		return m, err
	}
	sig, err := r.ReadFixed(64)
	if err != nil {
		return m, err
	}
	copy(m.Signature[:], sig)
	if m.MsgType, err = r.ReadU8(); err != nil {
		return m, err
	}
	pk, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.ServerPubkey[:], pk)
	sid, err := r.ReadFixed(8)
	if err != nil {
		return m, err
	}
	copy(m.ServerID[:], sid)
	if m.ChannelID, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.TimestampMs, err = r.ReadU64(); err != nil {
		return m, err
	}
	upk, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.UserPubkey[:], upk)
	if m.Nonce, err = r.ReadU16(); err != nil {
		return m, err
	}
	if m.Username, err = r.ReadString(); err != nil {
		return m, err
	}
	return m, nil
}
