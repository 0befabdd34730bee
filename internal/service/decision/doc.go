// Package decision composes the suppression registry, the quota governor
// and the experiment engine into the single send/no-send decision a
// campaign engine asks for before every outbound email.
package decision
