// Package httputil provides the JSON response/request helpers used by the
// admin API handlers, so every endpoint shares one error envelope.
package httputil
