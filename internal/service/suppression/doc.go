// Package suppression implements the per-workspace suppression registry.
//
// This is the single source of truth for whether an email address may
// receive mail. Suppressions flow in from unsubscribe links, bounce
// webhooks, spam complaints and manual operator actions, and are checked
// before every send.
//
// Addresses are normalized to lowercase before storage and comparison. A
// lookup error fails open by default (the address is reported as not
// suppressed and a warning is logged); WithFailClosed flips that policy.
//
// The service layer depends only on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package suppression
