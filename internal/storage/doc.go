// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - The learned target chat (so a /start survives restarts)
//   - A compact log of polls that were sent (never votes)
package storage
