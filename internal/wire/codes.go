package wire

// ComponentClass identifies which per-component message-code block a code
// belongs to.
type ComponentClass int

const (
	ClassSSEControl ComponentClass = iota
	ClassRFC
	ClassIFC
	ClassDX
	ClassTscope
	ClassTestSig
	ClassArchiver
	ClassChannelizer
)

// blockBase is the first code of each component class's disjoint range.
var blockBase = map[ComponentClass]Code{
	ClassSSEControl:  10000,
	ClassRFC:         20000,
	ClassIFC:         30000,
	ClassDX:          40000,
	ClassTscope:      50000,
	ClassTestSig:     60000,
	ClassArchiver:    70000,
	ClassChannelizer: 80000,
}

// Code is a message-type integer. Each component class reserves a 10000-wide
// block so codes routed generically never collide across component kinds.
type Code uint32

// Common per-block offsets every component class implements.
const (
	OffsetRequestIntrinsics Code = 1
	OffsetSendIntrinsics    Code = 2
	OffsetRequestStatus     Code = 3
	OffsetSendStatus        Code = 4
	// Domain-specific commands for a class start at offset 10. The control
	// plane sends its domain commands at this base offset; no class-specific
	// named offsets are defined.
	OffsetDomainCommandsBase Code = 10

	// OffsetStop and OffsetResetSocket are the two remaining watchdog-expiry
	// commands every component class answers to, alongside shutdown at
	// OffsetDomainCommandsBase.
	OffsetStop        Code = 11
	OffsetResetSocket Code = 12
)

func ClassOf(code Code) (ComponentClass, bool) {
	// blockBase partitions code space into 10000-wide windows; find the
	// window code falls in.
	for class, base := range blockBase {
		if code >= base && code < base+10000 {
			return class, true
		}
	}
	return 0, false
}

func CodeFor(class ComponentClass, offset Code) Code {
	return blockBase[class] + offset
}

// RequestIntrinsics/SendIntrinsics/RequestStatus/SendStatus are the four
// messages every component class enumerates.
func RequestIntrinsics(class ComponentClass) Code { return CodeFor(class, OffsetRequestIntrinsics) }
func SendIntrinsics(class ComponentClass) Code    { return CodeFor(class, OffsetSendIntrinsics) }
func RequestStatus(class ComponentClass) Code     { return CodeFor(class, OffsetRequestStatus) }
func SendStatus(class ComponentClass) Code        { return CodeFor(class, OffsetSendStatus) }

// Stop and ResetSocket are the other two steps of the watchdog-expiry
// sequence; Shutdown reuses OffsetDomainCommandsBase via
// internal/proxy.Proxy.Shutdown.
func Stop(class ComponentClass) Code        { return CodeFor(class, OffsetStop) }
func ResetSocket(class ComponentClass) Code { return CodeFor(class, OffsetResetSocket) }
