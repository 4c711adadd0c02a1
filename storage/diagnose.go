package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ClassifyConnectionError turns a backend connection failure into a
// human-readable diagnosis with remediation hints for the startup log.
func ClassifyConnectionError(err error, target string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()

	switch {
	case errors.Is(err, ErrTimeout):
		return fmt.Sprintf("Connection to %s timed out.\nRemediation:\n"+
			"  - Verify the host is reachable from this machine\n"+
			"  - Check firewall rules and security groups\n"+
			"  - Raise selector.connect_timeout if the link is just slow", target)
	case strings.Contains(msg, "connection refused"):
		return fmt.Sprintf("Connection to %s was refused.\nRemediation:\n"+
			"  - Verify the service is running\n"+
			"  - Verify the configured address and port", target)
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "server misbehaving"):
		return fmt.Sprintf("Hostname in %s did not resolve.\nRemediation:\n"+
			"  - Check the configured URI for typos\n"+
			"  - Verify DNS from this machine", target)
	case strings.Contains(msg, "auth"), strings.Contains(msg, "Unauthorized"), strings.Contains(msg, "credentials"):
		return fmt.Sprintf("Authentication against %s failed.\nRemediation:\n"+
			"  - Verify the configured credentials\n"+
			"  - Verify the account has access to the target database", target)
	default:
		return fmt.Sprintf("Connection to %s failed: %v", target, err)
	}
}
