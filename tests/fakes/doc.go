// Package fakes provides in-memory fakes and failure-injecting wrappers for
// testing vaulter components without real backends.
package fakes
