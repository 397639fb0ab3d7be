package rpcnet

// opcode is the single byte a client sends to open a command (spec §4.D).
// Values match original_source/luarpc.c's RPC_CMD_* enum exactly, since
// they are wire-visible.
type opcode byte

const (
	cmdCall     opcode = 1
	cmdGet      opcode = 2
	cmdCon      opcode = 3
	cmdNewIndex opcode = 4
)

// Command handshake bytes the server writes back after a CALL/GET/
// NEWINDEX opcode (spec §6.3). CON is deliberately excluded: it flows
// straight into negotiation with no handshake byte (spec §9 Q2).
const (
	replyReady          byte = 64
	replyUnsupportedCmd byte = 65
)

// MaxSegment bounds one dotted-path segment's length (spec §3's Accessor
// contract); segments of length MaxSegment or more fail locally with
// BadName, with no network traffic.
const MaxSegment = 32

// DefaultMaxLinkErrs is the nonfatal-error budget a server session is
// allowed before the dispatcher escalates to a fatal shutdown (spec §4.E).
const DefaultMaxLinkErrs = 20

// errRun is the conventional runtime-error code a CALL failure reply
// carries when the host.Capability itself didn't supply one (undefined
// function, argument/result conversion failure). It matches Lua's own
// LUA_ERRRUN (original_source/luarpc.c:1227), not an arbitrary choice.
const errRun uint32 = 2
