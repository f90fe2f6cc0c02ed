package fine

import "strconv"

// Op is a FUSE opcode. Values match the kernel's fuse_opcode so transports can
// pass them through unchanged.
type Op uint32

// Supported opcodes.
const (
	OpLookup      Op = 1
	OpForget      Op = 2
	OpGetattr     Op = 3
	OpSetattr     Op = 4
	OpMkdir       Op = 9
	OpUnlink      Op = 10
	OpRmdir       Op = 11
	OpLink        Op = 13
	OpOpen        Op = 14
	OpRead        Op = 15
	OpWrite       Op = 16
	OpRelease     Op = 18
	OpFsync       Op = 20
	OpFlush       Op = 25
	OpOpendir     Op = 27
	OpReaddir     Op = 28
	OpReleasedir  Op = 29
	OpCreate      Op = 35
	OpInterrupt   Op = 36
	OpDestroy     Op = 38
	OpBatchForget Op = 42
)

var opNames = map[Op]string{
	OpLookup:      "LOOKUP",
	OpForget:      "FORGET",
	OpGetattr:     "GETATTR",
	OpSetattr:     "SETATTR",
	OpMkdir:       "MKDIR",
	OpUnlink:      "UNLINK",
	OpRmdir:       "RMDIR",
	OpLink:        "LINK",
	OpOpen:        "OPEN",
	OpRead:        "READ",
	OpWrite:       "WRITE",
	OpRelease:     "RELEASE",
	OpFsync:       "FSYNC",
	OpFlush:       "FLUSH",
	OpOpendir:     "OPENDIR",
	OpReaddir:     "READDIR",
	OpReleasedir:  "RELEASEDIR",
	OpCreate:      "CREATE",
	OpInterrupt:   "INTERRUPT",
	OpDestroy:     "DESTROY",
	OpBatchForget: "BATCH_FORGET",
}

// String implements fmt.Stringer.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "OP_" + strconv.Itoa(int(o))
}

// HasResponse reports whether the kernel expects a reply for o.
func (o Op) HasResponse() bool {
	return o != OpForget && o != OpBatchForget
}
