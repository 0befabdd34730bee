// Package domain holds the value types shared by the governance services:
// suppression entries, quota counters and limits, variants, assignments,
// experiments and their statistics.
//
// The package imports nothing from internal/ and carries no storage or
// transport state. Methods are limited to pure helpers such as enum
// validation and service-day comparison. Service packages wrap their
// sentinel errors in ErrValidation, ErrNotFound or ErrConflict so callers
// can classify failures without knowing each sentinel.
package domain
