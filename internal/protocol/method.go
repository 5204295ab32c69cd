package protocol

// Method is the closed set of protocol methods the client understands.
// Wire strings outside this set decode as MethodUnknown.
type Method int

const (
	MethodUnknown Method = iota

	MethodDiscover
	MethodDiscoverReply
	MethodTSLGet
	MethodTSLGetReply
	MethodServiceInvoke
	MethodServiceInvokeReply
	MethodPropertyGet
	MethodPropertyGetReply

	// Unsolicited notifications.
	MethodPropertyPost
	MethodEventPost
	MethodDeviceOnline
	MethodDeviceOffline
)

// wireNames are the canonical method strings sent on the wire.
var wireNames = map[Method]string{
	MethodDiscover:           "thing.subdev.getall",
	MethodDiscoverReply:      "thing.subdev.getall.reply",
	MethodTSLGet:             "thing.tsl.get",
	MethodTSLGetReply:        "thing.tsl.get.reply",
	MethodServiceInvoke:      "thing.service.invoke",
	MethodServiceInvokeReply: "thing.service.invoke.reply",
	MethodPropertyGet:        "thing.service.property.get",
	MethodPropertyGetReply:   "thing.service.property.get.reply",
	MethodPropertyPost:       "thing.event.property.post",
	MethodEventPost:          "thing.event.post",
	MethodDeviceOnline:       "thing.device.online",
	MethodDeviceOffline:      "thing.device.offline",
}

// aliases are older firmware spellings accepted on decode.
var aliases = map[string]Method{
	"thing.device.propPost":    MethodPropertyPost,
	"thing.device.eventPost":   MethodEventPost,
	"thing.device.serviceCall": MethodServiceInvoke,
}

var byWireName = func() map[string]Method {
	m := make(map[string]Method, len(wireNames)+len(aliases))
	for method, name := range wireNames {
		m[name] = method
	}
	for name, method := range aliases {
		m[name] = method
	}
	return m
}()

// ParseMethod maps a wire string to a Method. Unrecognised strings return
// MethodUnknown.
func ParseMethod(s string) Method {
	return byWireName[s]
}

// String returns the canonical wire name, or "unknown".
func (m Method) String() string {
	if name, ok := wireNames[m]; ok {
		return name
	}
	return "unknown"
}

// IsReply reports whether m is the reply half of a request/reply pair.
func (m Method) IsReply() bool {
	switch m {
	case MethodDiscoverReply, MethodTSLGetReply, MethodServiceInvokeReply,
		MethodPropertyGetReply:
		return true
	}
	return false
}
