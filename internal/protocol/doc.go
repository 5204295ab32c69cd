// Package protocol is the wire codec for the Azoula gateway JSON protocol.
//
// Requests are published as
//
//	{"id":"<UUID>","version":"1.0","deviceID":"...","method":"...","identifier":"...","params":{...}}
//
// Replies echo the id and add a "code" (200 on success) and a "data"
// payload. Notifications (property posts, event posts, online/offline)
// carry no meaningful id.
//
// Decoding is tolerant: absent fields decode as zero values, integers may
// arrive as strings, and property values may be bare scalars instead of
// {value,time,changeByUser} objects.
package protocol
