// Package notifier delivers one chat-webhook message per new feed item.
//
// The payload is a Discord-style webhook body (username plus one embed).
// Delivery is synchronous on the caller's goroutine: HTTP 429 responses are
// retried after the server-provided delay, bounded by an attempt cap and a
// cumulative wait budget. Any other failure abandons the item.
//
// Every abandoned item is logged once at error level by the Service, so
// callers should not log Notify errors again above debug.
package notifier
