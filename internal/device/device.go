// Package device collects a small description of the host that the chat
// client can send to the server.
package device

import (
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// StatusActive is the status reported by a running client.
const StatusActive = "Active"

// UnknownVersion is reported when the OS version cannot be read.
const UnknownVersion = "Unknown version"

// Spec describes the host. Field names match the JSON sent over the wire.
type Spec struct {
	ID        string `json:"id"`
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	CoreNum   int    `json:"core_num"`
	IPAddr    string `json:"ip_addr"`
	Port      uint16 `json:"port"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// now is replaced in tests.
var now = time.Now

// Collect describes the current host with a fresh random id. Address fields
// are left empty; see [Spec.WithAddr].
func Collect() Spec {
	name, version := osInfo()
	if version == "" {
		version = UnknownVersion
	}
	return Spec{
		ID:        uuid.NewString(),
		OS:        name,
		OSVersion: version,
		CoreNum:   runtime.NumCPU(),
		Status:    StatusActive,
		UpdatedAt: now().UTC().Format(time.RFC3339),
	}
}

// WithAddr returns a copy of s with the address fields taken from addr,
// usually the local end of the chat connection.
func (s Spec) WithAddr(addr net.Addr) Spec {
	switch a := addr.(type) {
	case *net.TCPAddr:
		s.IPAddr = a.IP.String()
		s.Port = uint16(a.Port)
	case nil:
	default:
		s.IPAddr = a.String()
		s.Port = 0
	}
	return s
}

// JSON renders s as a compact JSON object.
func (s Spec) JSON() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding device spec: %w", err)
	}
	return string(b), nil
}
