// Package dataengine implements every durable operation Concord performs:
// servers, channels, members, messages, invites, profiles, tokens and
// challenges, each as one atomic batch against the KVStore. DataEngine is
// the only writer of durable state (spec.md §3 "Ownership").
package dataengine

import (
	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/iconstore"
	"github.com/37miners/concord/internal/kvstore"
)

// Engine is the single point of access to all durable Concord state.
type Engine struct {
	store *kvstore.Store
	icons *iconstore.Store
}

// New wraps an opened KVStore. Server icon bytes are kept inline in the
// KVStore record until SetIconStore is called; concordd calls it during
// startup to move them onto the filesystem per spec.md's persisted state
// layout. Tests that never call it keep the simpler inline behavior.
func New(store *kvstore.Store) *Engine {
	return &Engine{store: store}
}

// SetIconStore redirects server icon reads/writes onto the filesystem.
func (e *Engine) SetIconStore(icons *iconstore.Store) {
	e.icons = icons
}

// ServerRecord is the durable ServerInfo record.
type ServerRecord struct {
	ServerID     [8]byte
	ServerPubkey [32]byte
	Name         string
	Icon         []byte
	Joined       bool
	Remote       bool
}

func (s *ServerRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteFixed(s.ServerID[:])
	w.WriteFixed(s.ServerPubkey[:])
	w.WriteString(s.Name)
	w.WriteBytes(s.Icon)
	w.WriteBool(s.Joined)
	w.WriteBool(s.Remote)
	return w.Bytes()
}

func unmarshalServer(b []byte) (ServerRecord, error) {
	var s ServerRecord
	r := codec.NewReader(b)
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
	if s.Remote, err = r.ReadBool(); err != nil {
		return s, err
	}
	return s, nil
}

// ProfileRecord is the durable Profile record.
type ProfileRecord struct {
	UserPubkey   [32]byte
	ServerPubkey [32]byte
	ServerID     [8]byte
	Avatar       []byte
	Username     string
	Bio          string
}

func (p *ProfileRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteFixed(p.UserPubkey[:])
	w.WriteFixed(p.ServerPubkey[:])
	w.WriteFixed(p.ServerID[:])
	w.WriteBytes(p.Avatar)
	w.WriteString(p.Username)
	w.WriteString(p.Bio)
	return w.Bytes()
}

func unmarshalProfile(b []byte) (ProfileRecord, error) {
	var p ProfileRecord
	r := codec.NewReader(b)
	up, err := r.ReadFixed(32)
	if err != nil {
		return p, err
	}
	copy(p.UserPubkey[:], up)
	sp, err := r.ReadFixed(32)
	if err != nil {
		return p, err
	}
	copy(p.ServerPubkey[:], sp)
	sid, err := r.ReadFixed(8)
	if err != nil {
		return p, err
	}
	copy(p.ServerID[:], sid)
	if p.Avatar, err = r.ReadBytes(); err != nil {
		return p, err
	}
	if p.Username, err = r.ReadString(); err != nil {
		return p, err
	}
	if p.Bio, err = r.ReadString(); err != nil {
		return p, err
	}
	return p, nil
}

// MemberRecord is the durable Member record (spec.md §3).
type MemberRecord struct {
	UserPubkey     [32]byte
	ServerPubkey   [32]byte
	ServerID       [8]byte
	AuthFlags      uint64
	JoinTimeMs     uint64
	ModifiedTimeMs uint64
	BatchNum       uint64
}

func (m *MemberRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteFixed(m.UserPubkey[:])
	w.WriteFixed(m.ServerPubkey[:])
	w.WriteFixed(m.ServerID[:])
	w.WriteU64(m.AuthFlags)
	w.WriteU64(m.JoinTimeMs)
	w.WriteU64(m.ModifiedTimeMs)
	w.WriteU64(m.BatchNum)
	return w.Bytes()
}

func unmarshalMember(b []byte) (MemberRecord, error) {
	var m MemberRecord
	r := codec.NewReader(b)
	up, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.UserPubkey[:], up)
	sp, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.ServerPubkey[:], sp)
	sid, err := r.ReadFixed(8)
	if err != nil {
		return m, err
	}
	copy(m.ServerID[:], sid)
	if m.AuthFlags, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.JoinTimeMs, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.ModifiedTimeMs, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.BatchNum, err = r.ReadU64(); err != nil {
		return m, err
	}
	return m, nil
}

// ChannelRecord is the durable Channel record.
type ChannelRecord struct {
	ServerPubkey [32]byte
	ServerID     [8]byte
	ChannelID    uint64
	Name         string
	Description  string
}

func (c *ChannelRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteFixed(c.ServerPubkey[:])
	w.WriteFixed(c.ServerID[:])
	w.WriteU64(c.ChannelID)
	w.WriteString(c.Name)
	w.WriteString(c.Description)
	return w.Bytes()
}

func unmarshalChannel(b []byte) (ChannelRecord, error) {
	var c ChannelRecord
	r := codec.NewReader(b)
	sp, err := r.ReadFixed(32)
	if err != nil {
		return c, err
	}
	copy(c.ServerPubkey[:], sp)
	sid, err := r.ReadFixed(8)
	if err != nil {
		return c, err
	}
	copy(c.ServerID[:], sid)
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

// MessageRecord is the durable Message record.
type MessageRecord struct {
	Payload      []byte
	Signature    [64]byte
	MsgType      uint8
	ServerPubkey [32]byte
	ServerID     [8]byte
	ChannelID    uint64
	TimestampMs  uint64
	UserPubkey   [32]byte
	Nonce        uint16
	Seqno        uint64
	BatchNum     uint64
}

func (m *MessageRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteBytes(m.Payload)
	w.WriteFixed(m.Signature[:])
	w.WriteU8(m.MsgType)
	w.WriteFixed(m.ServerPubkey[:])
	w.WriteFixed(m.ServerID[:])
	w.WriteU64(m.ChannelID)
	w.WriteU64(m.TimestampMs)
	w.WriteFixed(m.UserPubkey[:])
	w.WriteU16(m.Nonce)
	w.WriteU64(m.Seqno)
	w.WriteU64(m.BatchNum)
	return w.Bytes()
}

func unmarshalMessage(b []byte) (MessageRecord, error) {
	var m MessageRecord
	r := codec.NewReader(b)
	var err error
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
	sp, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.ServerPubkey[:], sp)
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
	up, err := r.ReadFixed(32)
	if err != nil {
		return m, err
	}
	copy(m.UserPubkey[:], up)
	if m.Nonce, err = r.ReadU16(); err != nil {
		return m, err
	}
	if m.Seqno, err = r.ReadU64(); err != nil {
		return m, err
	}
	if m.BatchNum, err = r.ReadU64(); err != nil {
		return m, err
	}
	return m, nil
}

// InviteRecord is the durable Invite record.
type InviteRecord struct {
	Inviter  [32]byte
	ServerID [8]byte
	ExpiryMs uint64
	Cur      uint64
	Max      uint64
	ID       [16]byte
}

func (i *InviteRecord) marshal() []byte {
	w := codec.NewWriter()
	w.WriteFixed(i.Inviter[:])
	w.WriteFixed(i.ServerID[:])
	w.WriteU64(i.ExpiryMs)
	w.WriteU64(i.Cur)
	w.WriteU64(i.Max)
	w.WriteFixed(i.ID[:])
	return w.Bytes()
}

func unmarshalInvite(b []byte) (InviteRecord, error) {
	var i InviteRecord
	r := codec.NewReader(b)
	inv, err := r.ReadFixed(32)
	if err != nil {
		return i, err
	}
	copy(i.Inviter[:], inv)
	sid, err := r.ReadFixed(8)
	if err != nil {
		return i, err
	}
	copy(i.ServerID[:], sid)
	if i.ExpiryMs, err = r.ReadU64(); err != nil {
		return i, err
	}
	if i.Cur, err = r.ReadU64(); err != nil {
		return i, err
	}
	if i.Max, err = r.ReadU64(); err != nil {
		return i, err
	}
	id, err := r.ReadFixed(16)
	if err != nil {
		return i, err
	}
	copy(i.ID[:], id)
	return i, nil
}

// tokenValue is the (creation_ms, last_access_ms, expiration_ms) tuple
// stored at keymodel.TokenKey(user_pubkey, token).
type tokenValue struct {
	CreationMs   uint64
	LastAccessMs uint64
	ExpirationMs uint64
}

func (t *tokenValue) marshal() []byte {
	w := codec.NewWriter()
	w.WriteU64(t.CreationMs)
	w.WriteU64(t.LastAccessMs)
	w.WriteU64(t.ExpirationMs)
	return w.Bytes()
}

func unmarshalToken(b []byte) (tokenValue, error) {
	var t tokenValue
	r := codec.NewReader(b)
	var err error
	if t.CreationMs, err = r.ReadU64(); err != nil {
		return t, err
	}
	if t.LastAccessMs, err = r.ReadU64(); err != nil {
		return t, err
	}
	if t.ExpirationMs, err = r.ReadU64(); err != nil {
		return t, err
	}
	return t, nil
}
