package irc

import "sort"

// Capability is one client capability offered during CAP negotiation.
type Capability struct {
	Name        string
	Description string
	Value       string
}

// String returns the advertised form, name=value when a value is set.
func (c *Capability) String() string {
	if c.Value != "" {
		return c.Name + "=" + c.Value
	}
	return c.Name
}

// serverCapabilities lists the capabilities this server is prepared to
// honor. Only capabilities with a real behavioral effect are advertised;
// an ACK must mean something.
var serverCapabilities = map[string]*Capability{
	"echo-message": {
		Name:        "echo-message",
		Description: "PRIVMSG and NOTICE are echoed back to their sender",
	},
}

// capabilityNames returns the advertised capability names in sorted
// order so LS output is stable.
func capabilityNames() []string {
	names := make([]string, 0, len(serverCapabilities))
	for name := range serverCapabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
