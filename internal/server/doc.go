// Package server exposes the HTTP surface of the bot: a liveness root and
// the Telegram webhook endpoint.
package server
