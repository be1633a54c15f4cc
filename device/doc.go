// Package device defines the fixed device/network context attached to a session
// and validated at the API boundary before it reaches the risk engine.
//
// Every field is optional: an empty value means the client (or the edge proxy)
// did not report it, and the risk engine ignores unreported fields.
package device
