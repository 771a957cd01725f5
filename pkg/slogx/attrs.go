package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr for the provided error under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog.Attr with the string representation of a
// fmt.Stringer value under the given key.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

const (
	// KeyAgentName is the key used for the agent a log line belongs to.
	KeyAgentName = "agent"
)

// AgentName returns an attribute identifying the agent emitting a log line.
func AgentName(name string) slog.Attr {
	return slog.String(KeyAgentName, name)
}
