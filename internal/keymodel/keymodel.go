// Package keymodel builds the composite byte keys used to address every
// durable record in the KVStore. One physical ordered key-value store holds
// every index; a one-byte prefix tag disambiguates record kinds, and field
// order within a key is fixed so that a prefix scan yields records in the
// ordering required by the caller (see package doc on each builder).
package keymodel

import "encoding/binary"

// Prefix tags. Values and names are part of the wire/storage contract and
// must never change.
const (
	Server           byte = 0
	Token            byte = 1
	Message          byte = 2
	Channel          byte = 3
	MemberItt        byte = 4
	Invite           byte = 5
	InviteID         byte = 6
	Challenge        byte = 7
	StoredAuthToken  byte = 8
	MessageMetadata  byte = 9
	Profile          byte = 10
	MemberHash       byte = 11
	MemberMetaData   byte = 12
	MemberAuth       byte = 13
	ChannelMetaData  byte = 14
)

// GlobalServerID is the 8-byte "process scope" ServerId used for owner
// records and profile defaults.
var GlobalServerID = [8]byte{}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func u128(hi, lo uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return b
}

func cat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ServerKey addresses a ServerInfo record: (prefix, server_pubkey, server_id).
func ServerKey(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{Server}, serverPubkey[:], serverID[:])
}

// ServerPrefix scopes a scan to every server hosted by serverPubkey.
func ServerPrefix(serverPubkey [32]byte) []byte {
	return cat([]byte{Server}, serverPubkey[:])
}

// TokenKey addresses an AuthToken record: (prefix, user_pubkey, token).
func TokenKey(userPubkey [32]byte, token [16]byte) []byte {
	return cat([]byte{Token}, userPubkey[:], token[:])
}

// TokenPrefix scopes a full-table scan used by the purge sweep.
func TokenPrefix() []byte {
	return []byte{Token}
}

// MessageKey orders messages chronologically within one channel batch:
// (prefix, server_pubkey, server_id, channel_id, batch_num, timestamp_ms,
// user_pubkey, nonce). Fixing the first five fields and scanning by prefix
// yields entries in non-decreasing (timestamp_ms, user_pubkey, nonce) order.
func MessageKey(serverPubkey [32]byte, serverID [8]byte, channelID uint64, batchNum uint64, tsMs uint64, userPubkey [32]byte, nonce uint16) []byte {
	n := make([]byte, 2)
	binary.BigEndian.PutUint16(n, nonce)
	return cat([]byte{Message}, serverPubkey[:], serverID[:], u64(channelID), u64(batchNum), u64(tsMs), userPubkey[:], n)
}

// MessageBatchPrefix scopes a scan to one channel's batch.
func MessageBatchPrefix(serverPubkey [32]byte, serverID [8]byte, channelID uint64, batchNum uint64) []byte {
	return cat([]byte{Message}, serverPubkey[:], serverID[:], u64(channelID), u64(batchNum))
}

// ChannelKey addresses a Channel record: (prefix, server_pubkey, server_id, channel_id).
func ChannelKey(serverPubkey [32]byte, serverID [8]byte, channelID uint64) []byte {
	return cat([]byte{Channel}, serverPubkey[:], serverID[:], u64(channelID))
}

// ChannelPrefix scopes a scan to every channel of one server.
func ChannelPrefix(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{Channel}, serverPubkey[:], serverID[:])
}

// ChannelMetaDataKey tracks the running channel_count used to assign
// channel_id at creation time: (prefix, server_pubkey, server_id). Counting
// up rather than scanning live records keeps ids unique even after a
// channel in the middle of the range is deleted.
func ChannelMetaDataKey(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{ChannelMetaData}, serverPubkey[:], serverID[:])
}

// MemberIttKey addresses a Member record in the unauthorized (auth_flags==0)
// index: (prefix, server_pubkey, server_id, batch_num, user_pubkey).
func MemberIttKey(serverPubkey [32]byte, serverID [8]byte, batchNum uint64, userPubkey [32]byte) []byte {
	return cat([]byte{MemberItt}, serverPubkey[:], serverID[:], u64(batchNum), userPubkey[:])
}

// MemberIttBatchPrefix scopes a scan to one batch of the unauthorized index.
func MemberIttBatchPrefix(serverPubkey [32]byte, serverID [8]byte, batchNum uint64) []byte {
	return cat([]byte{MemberItt}, serverPubkey[:], serverID[:], u64(batchNum))
}

// MemberIttServerPrefix scopes a scan to every batch for one server.
func MemberIttServerPrefix(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{MemberItt}, serverPubkey[:], serverID[:])
}

// MemberAuthKey addresses a Member record in the authorized (auth_flags!=0)
// index: (prefix, server_pubkey, server_id, batch_num, user_pubkey).
func MemberAuthKey(serverPubkey [32]byte, serverID [8]byte, batchNum uint64, userPubkey [32]byte) []byte {
	return cat([]byte{MemberAuth}, serverPubkey[:], serverID[:], u64(batchNum), userPubkey[:])
}

// MemberAuthBatchPrefix scopes a scan to one batch of the authorized index.
func MemberAuthBatchPrefix(serverPubkey [32]byte, serverID [8]byte, batchNum uint64) []byte {
	return cat([]byte{MemberAuth}, serverPubkey[:], serverID[:], u64(batchNum))
}

// MemberAuthServerPrefix scopes a scan to every batch for one server.
func MemberAuthServerPrefix(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{MemberAuth}, serverPubkey[:], serverID[:])
}

// MemberHashKey is the canonical, batch-independent lookup for one member:
// (prefix, server_pubkey, server_id, user_pubkey) -> full Member record.
// It is consulted (and kept in sync) whenever a caller needs a member by
// identity without knowing which batch or auth index currently holds it.
func MemberHashKey(serverPubkey [32]byte, serverID [8]byte, userPubkey [32]byte) []byte {
	return cat([]byte{MemberHash}, serverPubkey[:], serverID[:], userPubkey[:])
}

// MemberMetaDataKey tracks the running member_count used to assign batch_num
// at creation time: (prefix, server_pubkey, server_id). The count advances on
// every membership write, including rewrites of an existing member, so it
// can run ahead of the number of distinct members.
func MemberMetaDataKey(serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{MemberMetaData}, serverPubkey[:], serverID[:])
}

// InviteKey lists invites by server, optionally filtered by inviter:
// (prefix, server_id, inviter, id).
func InviteKey(serverID [8]byte, inviter [32]byte, id [16]byte) []byte {
	return cat([]byte{Invite}, serverID[:], inviter[:], id[:])
}

// InviteServerPrefix scopes a scan to every invite on one server.
func InviteServerPrefix(serverID [8]byte) []byte {
	return cat([]byte{Invite}, serverID[:])
}

// InviteInviterPrefix scopes a scan to one inviter's invites on one server.
func InviteInviterPrefix(serverID [8]byte, inviter [32]byte) []byte {
	return cat([]byte{Invite}, serverID[:], inviter[:])
}

// InviteIDKey is the secondary lookup from raw invite id to its full record.
func InviteIDKey(id [16]byte) []byte {
	return cat([]byte{InviteID}, id[:])
}

// ChallengeKey addresses the single outstanding challenge for user_pubkey.
func ChallengeKey(userPubkey [32]byte) []byte {
	return cat([]byte{Challenge}, userPubkey[:])
}

// StoredAuthTokenKey addresses the process-local bootstrap token record.
func StoredAuthTokenKey(token [16]byte) []byte {
	return cat([]byte{StoredAuthToken}, token[:])
}

// MessageMetadataKey tracks the running message_count for a channel:
// (prefix, server_pubkey, server_id, channel_id).
func MessageMetadataKey(serverPubkey [32]byte, serverID [8]byte, channelID uint64) []byte {
	return cat([]byte{MessageMetadata}, serverPubkey[:], serverID[:], u64(channelID))
}

// ProfileKey addresses a Profile record: (prefix, user_pubkey, server_pubkey, server_id).
func ProfileKey(userPubkey [32]byte, serverPubkey [32]byte, serverID [8]byte) []byte {
	return cat([]byte{Profile}, userPubkey[:], serverPubkey[:], serverID[:])
}

// U64 big-endian encodes v. Exported for callers assembling composite values
// (not keys) with the same ordering property, e.g. invite/token records.
func U64(v uint64) []byte { return u64(v) }

// U128 big-endian encodes a 128-bit quantity as (hi, lo).
func U128(hi, lo uint64) []byte { return u128(hi, lo) }
