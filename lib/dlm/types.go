package dlm

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Limits and Completion Codes
// --------------------------------------------------------------------------

const (
	// MaxLockspaceNameLen is the longest lockspace name the service accepts.
	MaxLockspaceNameLen = 64
	// MaxResourceNameLen is the longest resource (lock) name the service accepts.
	MaxResourceNameLen = 64
	// LVBLen is the size of a lock value block in bytes.
	LVBLen = 32

	// EUNLOCK is left (negated) in the status block after a successful unlock.
	EUNLOCK = 0x10002
	// ECANCEL is left (negated) in the status block after a successful cancel.
	ECANCEL = 0x10001

	// DefaultMode is the permission mode used for new lockspaces (owner read-write).
	DefaultMode uint32 = 0o600
)

// Lockspace release force levels.
const (
	ForceNone  = 0 // fail if locks remain
	ForceLocal = 1 // reclaim remaining locks held by this process
	ForceAll   = 2 // reclaim remaining locks regardless of origin
)

// --------------------------------------------------------------------------
// Lock Modes
// --------------------------------------------------------------------------

// LockMode is the mode a lock is requested or granted in.
type LockMode int32

const (
	ModeIV LockMode = iota - 1 // Invalid
	ModeNL                     // NoLock
	ModeCR                     // ConcurrentRead
	ModeCW                     // ConcurrentWrite
	ModePR                     // ProtectedRead
	ModePW                     // ProtectedWrite
	ModeEX                     // Exclusive
)

var modeNames = map[LockMode]string{
	ModeIV: "IV",
	ModeNL: "NL",
	ModeCR: "CR",
	ModeCW: "CW",
	ModePR: "PR",
	ModePW: "PW",
	ModeEX: "EX",
}

// String returns the short DLM name of the mode (e.g. "EX").
func (m LockMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("LockMode(%d)", int32(m))
}

// Valid reports whether m can be requested from the service.
func (m LockMode) Valid() bool {
	return m >= ModeNL && m <= ModeEX
}

// ParseLockMode parses a mode name such as "EX" or "pr".
func ParseLockMode(s string) (LockMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for mode, name := range modeNames {
		if name == s && mode.Valid() {
			return mode, nil
		}
	}
	return ModeIV, fmt.Errorf("invalid lock mode %q (expected one of NL, CR, CW, PR, PW, EX)", s)
}

// compatMatrix[granted][requested] as defined by the DLM.
var compatMatrix = [6][6]bool{
	//         NL    CR     CW     PR     PW     EX
	/* NL */ {true, true, true, true, true, true},
	/* CR */ {true, true, true, true, true, false},
	/* CW */ {true, true, true, false, false, false},
	/* PR */ {true, true, false, true, false, false},
	/* PW */ {true, true, false, false, false, false},
	/* EX */ {true, false, false, false, false, false},
}

// Compatible reports whether a lock granted in mode a can coexist with a
// lock in mode b on the same resource. Invalid modes are never compatible.
func Compatible(a, b LockMode) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return compatMatrix[a][b]
}

// --------------------------------------------------------------------------
// Lock Flags
// --------------------------------------------------------------------------

// LockFlag is a bitset of request flags passed verbatim to the service.
type LockFlag uint32

const (
	FlagNoQueue     LockFlag = 0x00000001 // NOQUEUE: fail instead of queueing
	FlagCancel      LockFlag = 0x00000002 // CANCEL: cancel a pending request
	FlagConvert     LockFlag = 0x00000004 // CONVERT: convert an existing lock
	FlagValBlk      LockFlag = 0x00000008 // VALBLK: return/write the value block
	FlagQueCvt      LockFlag = 0x00000010 // QUECVT: force conversion through the convert queue
	FlagIvValBlk    LockFlag = 0x00000020 // IVVALBLK: invalidate the value block
	FlagConvDeadlk  LockFlag = 0x00000040 // CONVDEADLK: demote to NL on conversion deadlock
	FlagPersistent  LockFlag = 0x00000080 // PERSISTENT: survive the owner's exit as an orphan
	FlagNoDlckWt    LockFlag = 0x00000100 // NODLCKWT: no blocking notify on wait
	FlagNoDlckBlk   LockFlag = 0x00000200 // NODLCKBLK: no blocking notify on blocking request
	FlagExpedite    LockFlag = 0x00000400 // EXPEDITE: grant NL ahead of the queue
	FlagNoQueueBast LockFlag = 0x00000800 // NOQUEUEBAST: no blocking notify when NOQUEUE fails
	FlagHeadQue     LockFlag = 0x00001000 // HEADQUE: enqueue at the head
	FlagNoOrder     LockFlag = 0x00002000 // NOORDER: ignore queue ordering
	FlagOrphan      LockFlag = 0x00004000 // ORPHAN: adopt an orphaned lock
	FlagAltPR       LockFlag = 0x00008000 // ALTPR: grant PR if the mode is unavailable
	FlagAltCW       LockFlag = 0x00010000 // ALTCW: grant CW if the mode is unavailable
	FlagForceUnlock LockFlag = 0x00020000 // FORCEUNLOCK: unlock even with a pending conversion
	FlagTimeout     LockFlag = 0x00040000 // TIMEOUT: bound the wait by the service timeout
)

var flagNames = []struct {
	flag LockFlag
	name string
}{
	{FlagNoQueue, "NOQUEUE"},
	{FlagCancel, "CANCEL"},
	{FlagConvert, "CONVERT"},
	{FlagValBlk, "VALBLK"},
	{FlagQueCvt, "QUECVT"},
	{FlagIvValBlk, "IVVALBLK"},
	{FlagConvDeadlk, "CONVDEADLK"},
	{FlagPersistent, "PERSISTENT"},
	{FlagNoDlckWt, "NODLCKWT"},
	{FlagNoDlckBlk, "NODLCKBLK"},
	{FlagExpedite, "EXPEDITE"},
	{FlagNoQueueBast, "NOQUEUEBAST"},
	{FlagHeadQue, "HEADQUE"},
	{FlagNoOrder, "NOORDER"},
	{FlagOrphan, "ORPHAN"},
	{FlagAltPR, "ALTPR"},
	{FlagAltCW, "ALTCW"},
	{FlagForceUnlock, "FORCEUNLOCK"},
	{FlagTimeout, "TIMEOUT"},
}

// Has reports whether all bits of o are set in f.
func (f LockFlag) Has(o LockFlag) bool {
	return f&o == o
}

// String renders the flags as "NOQUEUE|VALBLK"; unknown bits are kept as hex.
func (f LockFlag) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseLockFlags parses a comma (or pipe) separated list of flag names or
// numbers, e.g. "NOQUEUE,valblk" or "0x1". An empty string yields 0.
func ParseLockFlags(s string) (LockFlag, error) {
	var flags LockFlag
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' })
	for _, field := range fields {
		field = strings.ToUpper(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if n, err := strconv.ParseUint(field, 0, 32); err == nil {
			flags |= LockFlag(n)
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == field {
				flags |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid lock flag %q", field)
		}
	}
	return flags, nil
}

// --------------------------------------------------------------------------
// Status Block Flags
// --------------------------------------------------------------------------

// StatusFlag is the result flag bitset of a status block.
type StatusFlag uint8

const (
	SBFDemoted     StatusFlag = 0x01 // the granted mode was demoted to NL
	SBFValNotValid StatusFlag = 0x02 // the value block content is not valid
	SBFAltMode     StatusFlag = 0x04 // an alternate mode (ALTPR/ALTCW) was granted
)

// String renders the flags as "DEMOTED|VALNOTVALID".
func (f StatusFlag) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	if f&SBFDemoted != 0 {
		parts = append(parts, "DEMOTED")
	}
	if f&SBFValNotValid != 0 {
		parts = append(parts, "VALNOTVALID")
	}
	if f&SBFAltMode != 0 {
		parts = append(parts, "ALTMODE")
	}
	if rest := f &^ (SBFDemoted | SBFValNotValid | SBFAltMode); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}
