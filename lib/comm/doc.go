// Package comm provides the messaging fabric between the database facade
// and its worker bots: the message envelope, an unbounded lock-free mailbox
// per bot, a channel pool that routes keys onto mailboxes, and a responder
// that correlates replies back to waiting callers by ticket.
//
// The facade never shares state with a bot. Every interaction is a Msg
// pushed into a mailbox, and every answer travels back through the
// Responder. Bots own their mailbox exclusively on the consuming side,
// while any number of goroutines may push concurrently.
package comm
