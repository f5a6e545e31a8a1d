//go:build !linux && !windows

package security

import "github.com/pkg/errors"

// platformMachineID has no source on this platform; the hostname alone is used.
func platformMachineID() (string, error) {
	return "", errors.New("machine id not supported on this platform")
}
