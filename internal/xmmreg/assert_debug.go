//go:build !xmmrelease

package xmmreg

const assertionsEnabled = true
