package security

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	cachedMachineID string
	machineIDMutex  sync.Mutex
)

// GetMachineID returns a stable identifier for this host. It hashes the
// operating system's machine identity together with the hostname, so it does
// not change when network interfaces come and go.
func GetMachineID() (string, error) {
	machineIDMutex.Lock()
	defer machineIDMutex.Unlock()

	if cachedMachineID != "" {
		return cachedMachineID, nil
	}

	machineID, err := generateMachineID()
	if err != nil {
		return "", err
	}

	cachedMachineID = machineID
	return machineID, nil
}

func generateMachineID() (string, error) {
	var data []string

	// Implemented per platform in machine_id_{linux,windows,other}.go
	if platformID, err := platformMachineID(); err == nil && platformID != "" {
		data = append(data, platformID)
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		data = append(data, hostname)
	}

	if len(data) == 0 {
		return "", errors.New("could not collect any machine-specific data")
	}

	hash := sha256.Sum256([]byte(strings.Join(data, "|")))
	return hex.EncodeToString(hash[:]), nil
}
