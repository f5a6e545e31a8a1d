//go:build linux

package security

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// platformMachineID reads the systemd / dbus machine id
func platformMachineID() (string, error) {
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	return "", errors.New("no machine-id file found")
}
