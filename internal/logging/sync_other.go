//go:build !unix

package logging

func isTerminalSyncErr(error) bool { return true }
