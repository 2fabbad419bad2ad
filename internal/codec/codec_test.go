package codec

import (
	"bytes"
	"testing"
)

func samplePubkey(b byte) (pk [32]byte) {
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func sampleServerID(b byte) (id [8]byte) {
	for i := range id {
		id[i] = b
	}
	return id
}

func TestRoundTripAllVariants(t *testing.T) {
	cases := []Event{
		&AuthEvent{HasToken: true, Token: [16]byte{1, 2, 3}},
		&AuthEvent{HasPubkey: true, Pubkey: samplePubkey(9), HasSig: true, Signature: []byte{1, 2, 3, 4}},
		&ChallengeEvent{ChallengeHi: 1, ChallengeLo: 2},
		&AuthResponse{Success: true},
		&AuthResponse{Success: false, HasRedirect: true, Redirect: "/"},
		&GetServersEvent{},
		&GetServersResponse{Servers: []ServerInfo{
			{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2), Name: "alpha", Icon: []byte{0xAA, 0xBB}, Joined: true},
		}},
		&CreateServerEvent{Name: "alpha", Icon: []byte{0xAA, 0xBB}},
		&DeleteServerEvent{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2)},
		&ModifyServerEvent{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2), HasName: true, Name: "beta"},
		&GetChannelsRequest{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2)},
		&GetChannelsResponse{ServerID: sampleServerID(1), Channels: []ChannelInfo{{ChannelID: 1, Name: "general"}}},
		&AddChannelRequest{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2), Name: "general", Description: ""},
		&AddChannelResponse{Success: true, ChannelID: 7},
		&ModifyChannelRequest{ChannelID: 7, HasName: true, Name: "gen"},
		&ModifyChannelResponse{Success: true},
		&DeleteChannelRequest{ChannelID: 7},
		&DeleteChannelResponse{Success: true},
		&SendMessageRequest{ChannelID: 7, Payload: []byte("hi"), MsgType: 0, Nonce: 3},
		&SendMessageResponse{Success: true, Seqno: 41},
		&GetMessagesRequest{ChannelID: 7, BatchNum: 0},
		&GetMessagesResponse{Messages: []MessageInfo{{Seqno: 1, Payload: []byte("hi"), Username: "alice"}}},
		&SubscribeRequest{ServerID: sampleServerID(1), HasChannelID: true, ChannelID: 7, TorPort: 19901},
		&SubscribeResponse{Success: true},
		&MessagePushEvent{ServerID: sampleServerID(1), Message: MessageInfo{Seqno: 1}},
		&GetMembersRequest{ServerID: sampleServerID(1), Auth: true},
		&GetMembersResponse{Members: []MemberInfo{{AuthFlags: 1, Username: "bob"}}},
		&PingEvent{TimestampMs: 123},
	}

	for _, want := range cases {
		encoded := Encode(1000, want)
		env, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode(%T): %v", want, err)
		}
		if env.Event.Type() != want.Type() {
			t.Fatalf("type mismatch: got %d want %d", env.Event.Type(), want.Type())
		}
		got := Encode(1000, env.Event)
		if !bytes.Equal(got, encoded) {
			t.Fatalf("round trip mismatch for %T: got %x want %x", want, got, encoded)
		}
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	encoded := Encode(1, &GetServersEvent{})
	encoded[0] = 99
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestDecodeRejectsUnknownVariant(t *testing.T) {
	encoded := Encode(1, &GetServersEvent{})
	// event_type sits at offset 1 (version) + 16 (timestamp) = 17.
	encoded[17] = 0xFF
	encoded[18] = 0xFF
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected error for unknown variant tag")
	}
}

func TestDecodeNeverOverreadsOnTruncatedPrefix(t *testing.T) {
	full := Encode(1, &GetServersResponse{Servers: []ServerInfo{
		{ServerID: sampleServerID(1), ServerPubkey: samplePubkey(2), Name: "alpha", Icon: []byte{1, 2, 3}},
	}})
	for n := 0; n < len(full); n++ {
		if _, err := Decode(full[:n]); err == nil {
			t.Fatalf("decode of %d/%d byte prefix unexpectedly succeeded", n, len(full))
		}
	}
}
