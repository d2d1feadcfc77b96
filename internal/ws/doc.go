// Package ws streams recent samples and alerts to WebSocket clients. The
// hub pushes a state envelope to every connected client on a fixed interval
// and once immediately on connect.
package ws
