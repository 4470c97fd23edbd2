package device

import (
	"sync"

	"github.com/zhukovaskychina/xkernel-server/kernel/basic"
)

// Role identifies what a registered block device is used for.
type Role int

const (
	RoleFilesys Role = iota
	RoleSwap
)

var (
	roleMu    sync.Mutex
	roleTable = make(map[Role]basic.BlockDevice)
)

// Register binds dev to role, replacing any previous binding.
func Register(role Role, dev basic.BlockDevice) {
	roleMu.Lock()
	defer roleMu.Unlock()
	roleTable[role] = dev
}

// GetRole returns the device registered for role, or nil.
func GetRole(role Role) basic.BlockDevice {
	roleMu.Lock()
	defer roleMu.Unlock()
	return roleTable[role]
}
