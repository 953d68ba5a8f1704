package agent

import (
	"fmt"
	"strings"
)

// unitParams are the values substituted into an application's service unit.
type unitParams struct {
	App        string
	NodeExec   string
	MainScript string
	User       string
	Group      string
	Port       int
	WorkingDir string
}

// renderUnit produces the systemd unit that runs an application's main
// script under the unprivileged service account.
func renderUnit(p unitParams) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	fmt.Fprintf(&b, "Description=%s\n", p.App)
	b.WriteString("After=network.target\n\n")
	b.WriteString("[Service]\n")
	fmt.Fprintf(&b, "ExecStart=%s %s\n", p.NodeExec, p.MainScript)
	b.WriteString("Restart=always\n")
	fmt.Fprintf(&b, "User=%s\n", p.User)
	fmt.Fprintf(&b, "Group=%s\n", p.Group)
	b.WriteString("Environment=PATH=/usr/bin:/usr/local/bin\n")
	b.WriteString("Environment=NODE_ENV=production\n")
	fmt.Fprintf(&b, "Environment=YOURNODE_PORT=%d\n", p.Port)
	fmt.Fprintf(&b, "WorkingDirectory=%s\n\n", p.WorkingDir)
	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}
