// ABOUTME: Package doc for channel
// ABOUTME: Adapter interface and detection shared by all inbound surfaces

// Package channel defines the adapter contract between the gateway core
// and its inbound surfaces. Each adapter translates its wire format into
// normalized Requests and renders Responses back out; it never performs
// authentication, rate limiting, or execution itself.
//
// The Detector picks an adapter for an inbound request: a registered
// path-prefix match wins, then the X-Nexus-Channel header hint, then the
// configured default.
package channel
