//go:build xmmrelease

package xmmreg

const assertionsEnabled = false
