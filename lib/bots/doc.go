// Package bots implements the worker bots that own the zone slices, plus
// their supervision: a Sentinel that latches the first fatal error, a
// Handle for signaling and joining a bot, and a Supervisor that spawns
// bots and tracks their readiness.
//
// Each bot exclusively owns one zone slice directory and one mailbox. It
// processes requests strictly in mailbox order, replies through the
// responder, and on a finish signal drains what was already queued before
// terminating. A storage failure trips the bot's sentinel and stops the
// bot; the facade refuses further work for tripped bots.
package bots
