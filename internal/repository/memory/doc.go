// Package memory provides in-process repository implementations. They back
// the governor in single-process mode (quota_backend: memory) and serve as
// fakes in service tests. All stores are safe for concurrent use.
package memory
