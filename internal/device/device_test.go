package device

import (
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	s := Collect()
	_, err := uuid.Parse(s.ID)
	assert.NoError(t, err, "ID %q is not a uuid", s.ID)
	assert.NotEmpty(t, s.OS)
	assert.NotEmpty(t, s.OSVersion)
	assert.Equal(t, runtime.NumCPU(), s.CoreNum)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, "2026-03-04T04:06:07Z", s.UpdatedAt)
	assert.Empty(t, s.IPAddr, "address fields should start empty")
	assert.Zero(t, s.Port, "address fields should start empty")
}

func TestCollect_UniqueIDs(t *testing.T) {
	assert.NotEqual(t, Collect().ID, Collect().ID, "expected a fresh id per call")
}

func TestWithAddr(t *testing.T) {
	base := Spec{ID: "x"}

	tcp := base.WithAddr(&net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 54321})
	assert.Equal(t, "10.0.0.7", tcp.IPAddr)
	assert.Equal(t, uint16(54321), tcp.Port)
	assert.Empty(t, base.IPAddr, "WithAddr must not modify the receiver")

	unix := base.WithAddr(&net.UnixAddr{Name: "/tmp/chat.sock", Net: "unix"})
	assert.Equal(t, "/tmp/chat.sock", unix.IPAddr)
	assert.Zero(t, unix.Port)

	assert.Equal(t, base, base.WithAddr(nil), "nil addr changed spec")
}

func TestJSON(t *testing.T) {
	s := Spec{ID: "id-1", OS: "Linux", OSVersion: "6.1", CoreNum: 8, IPAddr: "127.0.0.1", Port: 8080, Status: StatusActive, UpdatedAt: "t"}
	out, err := s.JSON()
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "id-1", "os": "Linux", "os_version": "6.1", "core_num": 8,
		"ip_addr": "127.0.0.1", "port": 8080, "status": "Active", "updated_at": "t"
	}`, out)
}
