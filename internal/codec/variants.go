package codec

// AuthEvent is sent client -> server as handshake step 2. Exactly one of
// the token path (Token present) or the signature path (Pubkey+Signature
// present) is expected by AuthEngine.
type AuthEvent struct {
	Signature []byte
	HasSig    bool
	Token     [16]byte
	HasToken  bool
	Pubkey    [32]byte
	HasPubkey bool
}

func (e *AuthEvent) Type() EventType { return TypeAuthEvent }

func (e *AuthEvent) encode(w *Writer) {
	w.WriteOptionalBytes(e.Signature, e.HasSig)
	w.WriteBool(e.HasToken)
	if e.HasToken {
		w.WriteFixed(e.Token[:])
	}
	w.WriteBool(e.HasPubkey)
	if e.HasPubkey {
		w.WriteFixed(e.Pubkey[:])
	}
}

func decodeAuthEvent(r *Reader) (*AuthEvent, error) {
	e := &AuthEvent{}
	var err error
	if e.Signature, e.HasSig, err = r.ReadOptionalBytes(); err != nil {
		return nil, err
	}
	if e.HasToken, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.HasToken {
		b, err := r.ReadFixed(16)
		if err != nil {
			return nil, err
		}
		copy(e.Token[:], b)
	}
	if e.HasPubkey, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.HasPubkey {
		b, err := r.ReadFixed(32)
		if err != nil {
			return nil, err
		}
		copy(e.Pubkey[:], b)
	}
	return e, nil
}

// ChallengeEvent is sent server -> client as handshake step 1.
type ChallengeEvent struct {
	ChallengeHi uint64
	ChallengeLo uint64
}

func (e *ChallengeEvent) Type() EventType { return TypeChallengeEvent }

func (e *ChallengeEvent) encode(w *Writer) { w.WriteU128(e.ChallengeHi, e.ChallengeLo) }

func decodeChallengeEvent(r *Reader) (*ChallengeEvent, error) {
	hi, lo, err := r.ReadU128()
	if err != nil {
		return nil, err
	}
	return &ChallengeEvent{ChallengeHi: hi, ChallengeLo: lo}, nil
}

// AuthResponse is sent server -> client after an AuthEvent.
type AuthResponse struct {
	Success     bool
	Redirect    string
	HasRedirect bool
}

func (e *AuthResponse) Type() EventType { return TypeAuthResponse }

func (e *AuthResponse) encode(w *Writer) {
	w.WriteBool(e.Success)
	w.WriteOptionalString(e.Redirect, e.HasRedirect)
}

func decodeAuthResponse(r *Reader) (*AuthResponse, error) {
	e := &AuthResponse{}
	var err error
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Redirect, e.HasRedirect, err = r.ReadOptionalString(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetServersEvent requests the owner's joined servers.
type GetServersEvent struct{}

func (e *GetServersEvent) Type() EventType  { return TypeGetServersEvent }
func (e *GetServersEvent) encode(w *Writer) {}

func decodeGetServersEvent(r *Reader) (*GetServersEvent, error) { return &GetServersEvent{}, nil }

// GetServersResponse answers GetServersEvent.
type GetServersResponse struct {
	Servers []ServerInfo
}

func (e *GetServersResponse) Type() EventType { return TypeGetServersResponse }

func (e *GetServersResponse) encode(w *Writer) {
	w.WriteU64(uint64(len(e.Servers)))
	for i := range e.Servers {
		e.Servers[i].encode(w)
	}
}

func decodeGetServersResponse(r *Reader) (*GetServersResponse, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	out := make([]ServerInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := decodeServerInfo(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return &GetServersResponse{Servers: out}, nil
}

// CreateServerEvent creates a new server owned by the caller. Owner only.
type CreateServerEvent struct {
	Name string
	Icon []byte
}

func (e *CreateServerEvent) Type() EventType { return TypeCreateServerEvent }

func (e *CreateServerEvent) encode(w *Writer) {
	w.WriteString(e.Name)
	w.WriteBytes(e.Icon)
}

func decodeCreateServerEvent(r *Reader) (*CreateServerEvent, error) {
	e := &CreateServerEvent{}
	var err error
	if e.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if e.Icon, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteServerEvent deletes a server. Owner only.
type DeleteServerEvent struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
}

func (e *DeleteServerEvent) Type() EventType { return TypeDeleteServerEvent }

func (e *DeleteServerEvent) encode(w *Writer) {
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
}

func decodeDeleteServerEvent(r *Reader) (*DeleteServerEvent, error) {
	e := &DeleteServerEvent{}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	return e, nil
}

// ModifyServerEvent updates a server's name and/or icon. Owner only.
type ModifyServerEvent struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
	Name         string
	HasName      bool
	Icon         []byte
	HasIcon      bool
}

func (e *ModifyServerEvent) Type() EventType { return TypeModifyServerEvent }

func (e *ModifyServerEvent) encode(w *Writer) {
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteOptionalString(e.Name, e.HasName)
	w.WriteOptionalBytes(e.Icon, e.HasIcon)
}

func decodeModifyServerEvent(r *Reader) (*ModifyServerEvent, error) {
	e := &ModifyServerEvent{}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.Name, e.HasName, err = r.ReadOptionalString(); err != nil {
		return nil, err
	}
	if e.Icon, e.HasIcon, err = r.ReadOptionalBytes(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetChannelsRequest lists channels on one server.
type GetChannelsRequest struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
}

func (e *GetChannelsRequest) Type() EventType { return TypeGetChannelsRequest }

func (e *GetChannelsRequest) encode(w *Writer) {
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
}

func decodeGetChannelsRequest(r *Reader) (*GetChannelsRequest, error) {
	e := &GetChannelsRequest{}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	return e, nil
}

// GetChannelsResponse answers GetChannelsRequest.
type GetChannelsResponse struct {
	ServerID [8]byte
	Channels []ChannelInfo
}

func (e *GetChannelsResponse) Type() EventType { return TypeGetChannelsResponse }

func (e *GetChannelsResponse) encode(w *Writer) {
	w.WriteFixed(e.ServerID[:])
	w.WriteU64(uint64(len(e.Channels)))
	for i := range e.Channels {
		e.Channels[i].encode(w)
	}
}

func decodeGetChannelsResponse(r *Reader) (*GetChannelsResponse, error) {
	e := &GetChannelsResponse{}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	e.Channels = make([]ChannelInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		c, err := decodeChannelInfo(r)
		if err != nil {
			return nil, err
		}
		e.Channels = append(e.Channels, c)
	}
	return e, nil
}

// requestEnvelope fields shared by every Request/Response pair that
// correlates by request_id.
type requestEnvelope struct {
	RequestIDHi uint64
	RequestIDLo uint64
}

func (r *requestEnvelope) encode(w *Writer) { w.WriteU128(r.RequestIDHi, r.RequestIDLo) }

func decodeRequestEnvelope(r *Reader) (requestEnvelope, error) {
	hi, lo, err := r.ReadU128()
	return requestEnvelope{RequestIDHi: hi, RequestIDLo: lo}, err
}

// AddChannelRequest creates a channel. Owner only.
type AddChannelRequest struct {
	requestEnvelope
	ServerID     [8]byte
	ServerPubkey [32]byte
	Name         string
	Description  string
}

func (e *AddChannelRequest) Type() EventType { return TypeAddChannelRequest }

func (e *AddChannelRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteString(e.Name)
	w.WriteString(e.Description)
}

func decodeAddChannelRequest(r *Reader) (*AddChannelRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &AddChannelRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if e.Description, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// AddChannelResponse answers AddChannelRequest.
type AddChannelResponse struct {
	requestEnvelope
	Success   bool
	ChannelID uint64
	Error     string
}

func (e *AddChannelResponse) Type() EventType { return TypeAddChannelResponse }

func (e *AddChannelResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteBool(e.Success)
	w.WriteU64(e.ChannelID)
	w.WriteString(e.Error)
}

func decodeAddChannelResponse(r *Reader) (*AddChannelResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &AddChannelResponse{requestEnvelope: env}
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.ChannelID, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// ModifyChannelRequest updates a channel's name and/or description. Owner only.
type ModifyChannelRequest struct {
	requestEnvelope
	ServerID       [8]byte
	ServerPubkey   [32]byte
	ChannelID      uint64
	Name           string
	HasName        bool
	Description    string
	HasDescription bool
}

func (e *ModifyChannelRequest) Type() EventType { return TypeModifyChannelRequest }

func (e *ModifyChannelRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteU64(e.ChannelID)
	w.WriteOptionalString(e.Name, e.HasName)
	w.WriteOptionalString(e.Description, e.HasDescription)
}

func decodeModifyChannelRequest(r *Reader) (*ModifyChannelRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &ModifyChannelRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.ChannelID, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.Name, e.HasName, err = r.ReadOptionalString(); err != nil {
		return nil, err
	}
	if e.Description, e.HasDescription, err = r.ReadOptionalString(); err != nil {
		return nil, err
	}
	return e, nil
}

// ModifyChannelResponse answers ModifyChannelRequest.
type ModifyChannelResponse struct {
	requestEnvelope
	Success bool
	Error   string
}

func (e *ModifyChannelResponse) Type() EventType { return TypeModifyChannelResponse }

func (e *ModifyChannelResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteBool(e.Success)
	w.WriteString(e.Error)
}

func decodeModifyChannelResponse(r *Reader) (*ModifyChannelResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &ModifyChannelResponse{requestEnvelope: env}
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteChannelRequest deletes a channel. Owner only. Deletion is idempotent.
type DeleteChannelRequest struct {
	requestEnvelope
	ServerID     [8]byte
	ServerPubkey [32]byte
	ChannelID    uint64
}

func (e *DeleteChannelRequest) Type() EventType { return TypeDeleteChannelRequest }

func (e *DeleteChannelRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteU64(e.ChannelID)
}

func decodeDeleteChannelRequest(r *Reader) (*DeleteChannelRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &DeleteChannelRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.ChannelID, err = r.ReadU64(); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteChannelResponse answers DeleteChannelRequest. success is true even
// when the channel was already absent (idempotent delete).
type DeleteChannelResponse struct {
	requestEnvelope
	Success bool
	Error   string
}

func (e *DeleteChannelResponse) Type() EventType { return TypeDeleteChannelResponse }

func (e *DeleteChannelResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteBool(e.Success)
	w.WriteString(e.Error)
}

func decodeDeleteChannelResponse(r *Reader) (*DeleteChannelResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &DeleteChannelResponse{requestEnvelope: env}
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// SendMessageRequest posts one message to a channel. Member only.
type SendMessageRequest struct {
	requestEnvelope
	ServerID     [8]byte
	ServerPubkey [32]byte
	ChannelID    uint64
	Payload      []byte
	Signature    [64]byte
	MsgType      uint8
	Nonce        uint16
}

func (e *SendMessageRequest) Type() EventType { return TypeSendMessageRequest }

func (e *SendMessageRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteU64(e.ChannelID)
	w.WriteBytes(e.Payload)
	w.WriteFixed(e.Signature[:])
	w.WriteU8(e.MsgType)
	w.WriteU16(e.Nonce)
}

func decodeSendMessageRequest(r *Reader) (*SendMessageRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &SendMessageRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.ChannelID, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.Payload, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	sig, err := r.ReadFixed(64)
	if err != nil {
		return nil, err
	}
	copy(e.Signature[:], sig)
	if e.MsgType, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if e.Nonce, err = r.ReadU16(); err != nil {
		return nil, err
	}
	return e, nil
}

// SendMessageResponse answers SendMessageRequest.
type SendMessageResponse struct {
	requestEnvelope
	Success     bool
	Seqno       uint64
	TimestampMs uint64
	Error       string
}

func (e *SendMessageResponse) Type() EventType { return TypeSendMessageResponse }

func (e *SendMessageResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteBool(e.Success)
	w.WriteU64(e.Seqno)
	w.WriteU64(e.TimestampMs)
	w.WriteString(e.Error)
}

func decodeSendMessageResponse(r *Reader) (*SendMessageResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &SendMessageResponse{requestEnvelope: env}
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Seqno, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.TimestampMs, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetMessagesRequest fetches one batch of channel history. Member only.
type GetMessagesRequest struct {
	requestEnvelope
	ServerID     [8]byte
	ServerPubkey [32]byte
	ChannelID    uint64
	BatchNum     uint64
}

func (e *GetMessagesRequest) Type() EventType { return TypeGetMessagesRequest }

func (e *GetMessagesRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteU64(e.ChannelID)
	w.WriteU64(e.BatchNum)
}

func decodeGetMessagesRequest(r *Reader) (*GetMessagesRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &GetMessagesRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.ChannelID, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.BatchNum, err = r.ReadU64(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetMessagesResponse answers GetMessagesRequest.
type GetMessagesResponse struct {
	requestEnvelope
	Messages []MessageInfo
}

func (e *GetMessagesResponse) Type() EventType { return TypeGetMessagesResponse }

func (e *GetMessagesResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteU64(uint64(len(e.Messages)))
	for i := range e.Messages {
		e.Messages[i].encode(w)
	}
}

func decodeGetMessagesResponse(r *Reader) (*GetMessagesResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &GetMessagesResponse{requestEnvelope: env}
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	e.Messages = make([]MessageInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		m, err := decodeMessageInfo(r)
		if err != nil {
			return nil, err
		}
		e.Messages = append(e.Messages, m)
	}
	return e, nil
}

// SubscribeRequest expresses listener interest in a server, optionally
// narrowed to one channel. Member only.
type SubscribeRequest struct {
	requestEnvelope
	ServerID      [8]byte
	ServerPubkey  [32]byte
	ChannelID     uint64
	HasChannelID  bool
	ListenerIDHi  uint64
	ListenerIDLo  uint64
	TorPort       uint16
}

func (e *SubscribeRequest) Type() EventType { return TypeSubscribeRequest }

func (e *SubscribeRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteBool(e.HasChannelID)
	if e.HasChannelID {
		w.WriteU64(e.ChannelID)
	}
	w.WriteU128(e.ListenerIDHi, e.ListenerIDLo)
	w.WriteU16(e.TorPort)
}

func decodeSubscribeRequest(r *Reader) (*SubscribeRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &SubscribeRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.HasChannelID, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.HasChannelID {
		if e.ChannelID, err = r.ReadU64(); err != nil {
			return nil, err
		}
	}
	if e.ListenerIDHi, e.ListenerIDLo, err = r.ReadU128(); err != nil {
		return nil, err
	}
	if e.TorPort, err = r.ReadU16(); err != nil {
		return nil, err
	}
	return e, nil
}

// SubscribeResponse answers SubscribeRequest.
type SubscribeResponse struct {
	requestEnvelope
	Success bool
	Error   string
}

func (e *SubscribeResponse) Type() EventType { return TypeSubscribeResponse }

func (e *SubscribeResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteBool(e.Success)
	w.WriteString(e.Error)
}

func decodeSubscribeResponse(r *Reader) (*SubscribeResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &SubscribeResponse{requestEnvelope: env}
	if e.Success, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Error, err = r.ReadString(); err != nil {
		return nil, err
	}
	return e, nil
}

// MessagePushEvent is an unsolicited server -> listener push of one newly
// posted message matching a subscribed interest.
type MessagePushEvent struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
	Message      MessageInfo
}

func (e *MessagePushEvent) Type() EventType { return TypeMessagePushEvent }

func (e *MessagePushEvent) encode(w *Writer) {
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	e.Message.encode(w)
}

func decodeMessagePushEvent(r *Reader) (*MessagePushEvent, error) {
	e := &MessagePushEvent{}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	msg, err := decodeMessageInfo(r)
	if err != nil {
		return nil, err
	}
	e.Message = msg
	return e, nil
}

// GetMembersRequest lists one batch of a server's members. Member only.
type GetMembersRequest struct {
	requestEnvelope
	ServerID        [8]byte
	ServerPubkey    [32]byte
	BatchNum        uint64
	IncludeProfile  bool
	Auth            bool
}

func (e *GetMembersRequest) Type() EventType { return TypeGetMembersRequest }

func (e *GetMembersRequest) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteFixed(e.ServerID[:])
	w.WriteFixed(e.ServerPubkey[:])
	w.WriteU64(e.BatchNum)
	w.WriteBool(e.IncludeProfile)
	w.WriteBool(e.Auth)
}

func decodeGetMembersRequest(r *Reader) (*GetMembersRequest, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &GetMembersRequest{requestEnvelope: env}
	id, err := r.ReadFixed(8)
	if err != nil {
		return nil, err
	}
	copy(e.ServerID[:], id)
	pk, err := r.ReadFixed(32)
	if err != nil {
		return nil, err
	}
	copy(e.ServerPubkey[:], pk)
	if e.BatchNum, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if e.IncludeProfile, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if e.Auth, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetMembersResponse answers GetMembersRequest.
type GetMembersResponse struct {
	requestEnvelope
	Members []MemberInfo
}

func (e *GetMembersResponse) Type() EventType { return TypeGetMembersResponse }

func (e *GetMembersResponse) encode(w *Writer) {
	e.requestEnvelope.encode(w)
	w.WriteU64(uint64(len(e.Members)))
	for i := range e.Members {
		e.Members[i].encode(w)
	}
}

func decodeGetMembersResponse(r *Reader) (*GetMembersResponse, error) {
	env, err := decodeRequestEnvelope(r)
	if err != nil {
		return nil, err
	}
	e := &GetMembersResponse{requestEnvelope: env}
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	e.Members = make([]MemberInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		m, err := decodeMemberInfo(r)
		if err != nil {
			return nil, err
		}
		e.Members = append(e.Members, m)
	}
	return e, nil
}

// PingEvent is a keepalive push sent to a listener whose send slot has sat
// idle past PingTimeout.
type PingEvent struct{ TimestampMs uint64 }

func (e *PingEvent) Type() EventType  { return TypePingEvent }
func (e *PingEvent) encode(w *Writer) { w.WriteU64(e.TimestampMs) }

func decodePingEvent(r *Reader) (*PingEvent, error) {
	ts, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	return &PingEvent{TimestampMs: ts}, nil
}
