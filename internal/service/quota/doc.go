// Package quota implements the daily send-rate governor.
//
// Every campaign and every workspace has one daily counter. A counter's
// sent count is only meaningful on the service day recorded with it: the
// first read or write on a later day sees it as zero (lazy reset, no
// scheduled job). The service day is defined by one fixed time zone shared by
// all workers; see ServiceDay.
//
// All increments go through Store.TryConsume, which applies the reset, checks
// both ceilings and increments both counters as one atomic unit, so
// concurrent senders can never push a counter past its limit. Lookup errors
// fail closed: if quota state cannot be read, nothing is sent.
package quota
