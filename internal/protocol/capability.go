package protocol

// Capability is the 32-bit bitmap exchanged during handshake.
type Capability uint32

// Capability bits the core cares about. Values match CLIENT_* in
// include/mysql/mysql_com.h.
const (
	CapLongPassword  Capability = 1 << 0
	CapFoundRows     Capability = 1 << 1
	CapLongFlag      Capability = 1 << 2
	CapConnectWithDB Capability = 1 << 3
	CapNoSchema      Capability = 1 << 4
	CapCompress      Capability = 1 << 5
	CapODBC          Capability = 1 << 6
	CapLocalFiles    Capability = 1 << 7
	CapIgnoreSpace   Capability = 1 << 8
	CapProtocol41    Capability = 1 << 9
	CapInteractive   Capability = 1 << 10
	CapSSL           Capability = 1 << 11
	CapIgnoreSigpipe Capability = 1 << 12
	CapTransactions  Capability = 1 << 13
	// bit 14 reserved
	CapSecureConnection     Capability = 1 << 15
	CapMultiStatements      Capability = 1 << 16
	CapMultiResults         Capability = 1 << 17
	CapPSMultiResults       Capability = 1 << 18
	CapPluginAuth           Capability = 1 << 19
	CapConnectAttrs         Capability = 1 << 20
	CapPluginAuthLenencData Capability = 1 << 21
	CapCanHandleExpiredPwd  Capability = 1 << 22
	CapSessionTrack         Capability = 1 << 23
	CapDeprecateEOF         Capability = 1 << 24
)

// Required is the set of capabilities the core demands of every server it
// connects to.
const Required = CapProtocol41 | CapPluginAuth | CapPluginAuthLenencData | CapDeprecateEOF | CapSecureConnection

// Has reports whether all bits in want are set in c.
func (c Capability) Has(want Capability) bool { return c&want == want }

// Negotiate intersects the client's desired capabilities with what the
// server advertised, and reports whether every capability in Required
// survived the intersection.
func Negotiate(client, server Capability) (negotiated Capability, ok bool) {
	negotiated = client & server
	return negotiated, negotiated.Has(Required)
}
