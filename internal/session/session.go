// Package session implements ServerSession: one dispatcher per client
// connection that turns decoded events into DataEngine calls once the
// handshake has reached Authed (spec.md §4.7). It is the direct analogue of
// the teacher's Handler.serveConn/handleInbound pair
// (internal/ws/handler.go) — a single task reading events off one
// connection and writing responses back — generalized from chat messages
// to the full Concord event set and gated by member/owner authorization
// instead of room membership.
package session

import (
	"fmt"

	"github.com/37miners/concord/internal/authengine"
	"github.com/37miners/concord/internal/codec"
	"github.com/37miners/concord/internal/conntable"
	"github.com/37miners/concord/internal/constants"
	"github.com/37miners/concord/internal/dataengine"
	"github.com/37miners/concord/internal/fanout"
	"github.com/37miners/concord/internal/keymodel"
)

// Session dispatches every event arriving on one connection once its
// handshake is Authed. Before that it only accepts AuthEvent.
type Session struct {
	connID      [16]byte
	handshake   *authengine.Handshake
	conns       *conntable.Table
	fanOut      *fanout.FanOut
	dataEngine  *dataengine.Engine
	localServer [32]byte // this process's own ServerIdentity, for global-scope ops

	listenerID  [16]byte
	hasListener bool
	activeSlot  fanout.SendSlot
}

// New returns a Session for a freshly opened connection. localServer is the
// process's own ServerIdentity pubkey, used to authorize CreateServer and
// other events that have no explicit server_pubkey of their own.
func New(connID [16]byte, handshake *authengine.Handshake, conns *conntable.Table, fanOut *fanout.FanOut, dataEngine *dataengine.Engine, localServer [32]byte) *Session {
	return &Session{
		connID:      connID,
		handshake:   handshake,
		conns:       conns,
		fanOut:      fanOut,
		dataEngine:  dataEngine,
		localServer: localServer,
	}
}

// Close releases everything this connection held: its FanOut subscription
// (if it ever issued one) and its ConnectionTable entry.
func (s *Session) Close() {
	if s.hasListener {
		s.fanOut.Remove(s.listenerID)
		if s.activeSlot != nil {
			close(s.activeSlot)
		}
	}
	s.conns.Remove(s.connID)
}

// errAuthz is returned by GetServers, CreateServer, DeleteServer,
// ModifyServer and GetChannels when the event's actor lacks the required
// flag. The caller
// treats it like any other Handle error: httpapi's serveConn closes the
// connection and no response is sent.
var errAuthz = fmt.Errorf("session: not authorized")

// Handle advances the connection's state machine by one event and returns
// the response event to send, if any. A nil response (with nil error) means
// nothing is sent back for this event (MessagePushEvent fan-out aside,
// which Handle never originates — ConnManager/FanOut push those directly).
func (s *Session) Handle(ev codec.Event, nowMs uint64) (codec.Event, error) {
	if !s.handshake.Dispatch() {
		auth, ok := ev.(*codec.AuthEvent)
		if !ok {
			return nil, fmt.Errorf("session: event %T received before authentication", ev)
		}
		resp, err := s.handshake.HandleAuth(auth, nowMs)
		if err == nil && resp.Success {
			s.conns.Bind(s.connID, s.handshake.BoundPubkey())
		}
		return resp, err
	}

	bound := s.handshake.BoundPubkey()

	switch e := ev.(type) {
	case *codec.GetServersEvent:
		if !s.requireFlag(s.localServer, keymodel.GlobalServerID, bound, constants.OwnerFlag) {
			return nil, errAuthz
		}
		servers, err := s.dataEngine.GetServers(s.localServer)
		if err != nil {
			return nil, err
		}
		return &codec.GetServersResponse{Servers: toServerInfos(servers)}, nil

	case *codec.CreateServerEvent:
		if !s.requireFlag(s.localServer, keymodel.GlobalServerID, bound, constants.OwnerFlag) {
			return nil, errAuthz
		}
		if _, err := s.dataEngine.AddServer(s.localServer, e.Name, e.Icon, nil, bound, false, nowMs); err != nil {
			return nil, err
		}
		return nil, nil

	case *codec.DeleteServerEvent:
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.OwnerFlag) {
			return nil, errAuthz
		}
		if err := s.dataEngine.DeleteServer(e.ServerPubkey, e.ServerID); err != nil {
			return nil, err
		}
		return nil, nil

	case *codec.ModifyServerEvent:
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.OwnerFlag) {
			return nil, errAuthz
		}
		var name *string
		if e.HasName {
			name = &e.Name
		}
		if err := s.dataEngine.ModifyServer(e.ServerPubkey, e.ServerID, name, e.Icon, e.HasIcon); err != nil {
			return nil, err
		}
		return nil, nil

	case *codec.GetChannelsRequest:
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.MemberFlag) {
			return nil, errAuthz
		}
		channels, err := s.dataEngine.GetChannels(e.ServerPubkey, e.ServerID)
		if err != nil {
			return nil, err
		}
		return &codec.GetChannelsResponse{ServerID: e.ServerID, Channels: toChannelInfos(channels)}, nil

	case *codec.AddChannelRequest:
		resp := &codec.AddChannelResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.OwnerFlag) {
			resp.Error = "not authorized"
			return resp, nil
		}
		id, err := s.dataEngine.AddChannel(e.ServerPubkey, e.ServerID, e.Name, e.Description)
		if err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		resp.Success, resp.ChannelID = true, id
		return resp, nil

	case *codec.ModifyChannelRequest:
		resp := &codec.ModifyChannelResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.OwnerFlag) {
			resp.Error = "not authorized"
			return resp, nil
		}
		var name, description *string
		if e.HasName {
			name = &e.Name
		}
		if e.HasDescription {
			description = &e.Description
		}
		if err := s.dataEngine.SetChannel(e.ServerPubkey, e.ServerID, e.ChannelID, name, description); err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		resp.Success = true
		return resp, nil

	case *codec.DeleteChannelRequest:
		resp := &codec.DeleteChannelResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.OwnerFlag) {
			resp.Error = "not authorized"
			return resp, nil
		}
		if err := s.dataEngine.DeleteChannel(e.ServerPubkey, e.ServerID, e.ChannelID); err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		resp.Success = true
		return resp, nil

	case *codec.SendMessageRequest:
		resp := &codec.SendMessageResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.MemberFlag) {
			resp.Error = "not authorized"
			return resp, nil
		}
		msg := dataengine.MessageRecord{
			Payload:      e.Payload,
			Signature:    e.Signature,
			MsgType:      e.MsgType,
			ServerPubkey: e.ServerPubkey,
			ServerID:     e.ServerID,
			ChannelID:    e.ChannelID,
			TimestampMs:  nowMs,
			UserPubkey:   bound,
			Nonce:        e.Nonce,
		}
		posted, err := s.dataEngine.PostMessage(msg)
		if err != nil {
			resp.Error = err.Error()
			return resp, nil
		}
		resp.Success, resp.Seqno, resp.TimestampMs = true, posted.Seqno, posted.TimestampMs

		push := &codec.Envelope{Version: codec.Version, TimestampMs: nowMs, Event: &codec.MessagePushEvent{
			ServerID:     e.ServerID,
			ServerPubkey: e.ServerPubkey,
			Message:      toMessageInfo(posted, ""),
		}}
		interest := fanout.Interest{ServerPubkey: e.ServerPubkey, ServerID: e.ServerID, ChannelID: e.ChannelID, HasChannel: true}
		deliverNow(s.fanOut.AddEvent(push, interest), push)
		wholeServer := fanout.Interest{ServerPubkey: e.ServerPubkey, ServerID: e.ServerID}
		deliverNow(s.fanOut.AddEvent(push, wholeServer), push)
		return resp, nil

	case *codec.GetMessagesRequest:
		resp := &codec.GetMessagesResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.MemberFlag) {
			return resp, nil
		}
		msgs, err := s.dataEngine.GetMessages(e.ServerPubkey, e.ServerID, e.ChannelID, e.BatchNum)
		if err != nil {
			return nil, err
		}
		resp.Messages = make([]codec.MessageInfo, 0, len(msgs))
		for _, m := range msgs {
			resp.Messages = append(resp.Messages, toMessageInfo(m.MessageRecord, m.Username))
		}
		return resp, nil

	case *codec.SubscribeRequest:
		resp := &codec.SubscribeResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.MemberFlag) {
			resp.Error = "not authorized"
			return resp, nil
		}
		info, ok := s.conns.Get(s.connID)
		if !ok {
			resp.Error = "connection closed"
			return resp, nil
		}
		listenerID := combineU128(e.ListenerIDHi, e.ListenerIDLo)
		interest := fanout.Interest{ServerPubkey: e.ServerPubkey, ServerID: e.ServerID, ChannelID: e.ChannelID, HasChannel: e.HasChannelID}
		slot := newSendSlot(s.fanOut, listenerID, info)
		staleSlot, drained := s.fanOut.SetListenerInterest(listenerID, slot, []fanout.Interest{interest}, e.TorPort, int64(nowMs))
		if staleSlot != nil {
			// A re-subscribe on the same listener orphans its previous
			// deliverLoop goroutine; closing its slot lets it exit instead
			// of blocking forever.
			close(staleSlot)
		}
		deliverDrained(info, drained)
		s.listenerID, s.hasListener, s.activeSlot = listenerID, true, slot
		resp.Success = true
		return resp, nil

	case *codec.GetMembersRequest:
		resp := &codec.GetMembersResponse{}
		resp.RequestIDHi, resp.RequestIDLo = e.RequestIDHi, e.RequestIDLo
		if !s.requireFlag(e.ServerPubkey, e.ServerID, bound, constants.MemberFlag) {
			return resp, nil
		}
		members, err := s.dataEngine.GetMembers(e.ServerPubkey, e.ServerID, e.BatchNum, e.Auth)
		if err != nil {
			return nil, err
		}
		resp.Members = make([]codec.MemberInfo, 0, len(members))
		for _, m := range members {
			info := codec.MemberInfo{UserPubkey: m.UserPubkey, AuthFlags: m.AuthFlags, JoinTimeMs: m.JoinTimeMs, ModifiedTimeMs: m.ModifiedTimeMs}
			if e.IncludeProfile {
				if p, found, err := s.dataEngine.GetProfile(m.UserPubkey, e.ServerPubkey, e.ServerID); err == nil && found {
					info.Username, info.Bio, info.Avatar = p.Username, p.Bio, p.Avatar
				}
			}
			resp.Members = append(resp.Members, info)
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("session: unhandled event type %T", ev)
	}
}

func (s *Session) requireFlag(serverPubkey [32]byte, serverID [8]byte, userPubkey [32]byte, flag uint64) bool {
	ok, err := s.dataEngine.IsMember(serverPubkey, serverID, userPubkey, flag)
	return err == nil && ok
}

func combineU128(hi, lo uint64) [16]byte {
	var id [16]byte
	for i := 0; i < 8; i++ {
		id[i] = byte(hi >> (8 * (7 - i)))
	}
	for i := 0; i < 8; i++ {
		id[8+i] = byte(lo >> (8 * (7 - i)))
	}
	return id
}

// newSendSlot returns a fresh one-shot FanOut slot and starts the goroutine
// that keeps this listener receiving: each delivered envelope is encoded
// and written to the connection, then the same slot is handed back to
// FanOut via Rearm so the next event has somewhere to land (spec.md §4.6 —
// a SendSlot is consumed exactly once per delivery, so the connection's
// writer side is responsible for re-registering after every send).
func newSendSlot(fanOut *fanout.FanOut, listenerID [16]byte, info conntable.Info) fanout.SendSlot {
	slot := make(fanout.SendSlot, 1)
	go deliverLoop(fanOut, listenerID, info, slot)
	return slot
}

func deliverLoop(fanOut *fanout.FanOut, listenerID [16]byte, info conntable.Info, slot fanout.SendSlot) {
	for {
		env, ok := <-slot
		if !ok {
			return
		}
		if env != nil {
			if err := info.Send(codec.Encode(env.TimestampMs, env.Event)); err != nil {
				return
			}
		}
		drained := fanOut.Rearm(listenerID, slot)
		for _, d := range drained {
			if err := info.Send(codec.Encode(d.TimestampMs, d.Event)); err != nil {
				return
			}
		}
	}
}

func deliverDrained(info conntable.Info, drained []*codec.Envelope) {
	for _, env := range drained {
		_ = info.Send(codec.Encode(env.TimestampMs, env.Event))
	}
}

// deliverNow fills every slot AddEvent handed back — each is freshly taken
// from its listener (sendSlot set to nil), so the buffered send below never
// blocks on it.
func deliverNow(deliveries []fanout.Delivery, env *codec.Envelope) {
	for _, d := range deliveries {
		d.Slot <- env
	}
}

func toServerInfos(servers []dataengine.ServerRecord) []codec.ServerInfo {
	out := make([]codec.ServerInfo, 0, len(servers))
	for _, s := range servers {
		out = append(out, codec.ServerInfo{ServerID: s.ServerID, ServerPubkey: s.ServerPubkey, Name: s.Name, Icon: s.Icon, Joined: s.Joined})
	}
	return out
}

func toChannelInfos(channels []dataengine.ChannelRecord) []codec.ChannelInfo {
	out := make([]codec.ChannelInfo, 0, len(channels))
	for _, c := range channels {
		out = append(out, codec.ChannelInfo{ChannelID: c.ChannelID, Name: c.Name, Description: c.Description})
	}
	return out
}

func toMessageInfo(m dataengine.MessageRecord, username string) codec.MessageInfo {
	return codec.MessageInfo{
		Seqno:        m.Seqno,
		Payload:      m.Payload,
		Signature:    m.Signature,
		MsgType:      m.MsgType,
		ServerPubkey: m.ServerPubkey,
		ServerID:     m.ServerID,
		ChannelID:    m.ChannelID,
		TimestampMs:  m.TimestampMs,
		UserPubkey:   m.UserPubkey,
		Nonce:        m.Nonce,
		Username:     username,
	}
}
