// Package traffic models one intercepted interaction between the program under
// test and an external system, and the wire text it travels as.
package traffic

import (
	"fmt"
	"strings"
)

// Kind identifies one class of intercepted traffic.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindCall
	KindFileEdit
	KindServerMessage
	KindStdout
	KindStderr
	KindExitCode
	KindCallResult
	KindClientMessage
)

var kindNames = map[Kind]string{
	KindCommand:       "command",
	KindCall:          "call",
	KindFileEdit:      "file_edit",
	KindServerMessage: "server",
	KindStdout:        "stdout",
	KindStderr:        "stderr",
	KindExitCode:      "exit",
	KindCallResult:    "return",
	KindClientMessage: "client",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration name such as "command" or "client" to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown traffic kind %q", name)
}

// KindNames returns the configuration names of every built-in kind.
func KindNames() []string {
	names := make([]string, 0, len(kindNames))
	for k := KindCommand; k <= KindClientMessage; k++ {
		names = append(names, kindNames[k])
	}
	return names
}
