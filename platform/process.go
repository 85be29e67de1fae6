package platform

import (
	"fmt"
	"os"
	"os/user"
	"sync"
)

// Simple cache for username lookups
var (
	usernameCacheMutex sync.RWMutex
	usernameCache      = make(map[uint32]string)
)

// GetUsernameFromUID resolves a uid to a username, caching results. Returns
// the empty string when the uid cannot be resolved.
func GetUsernameFromUID(uid uint32) string {
	usernameCacheMutex.RLock()
	if username, ok := usernameCache[uid]; ok {
		usernameCacheMutex.RUnlock()
		return username
	}
	usernameCacheMutex.RUnlock()

	if u, err := user.LookupId(fmt.Sprintf("%d", uid)); err == nil {
		usernameCacheMutex.Lock()
		usernameCache[uid] = u.Username
		usernameCacheMutex.Unlock()
		return u.Username
	}
	return ""
}

// ThreadAlive reports whether a thread id still refers to a live task.
// /proc/<tid> resolves for every task on the system, not just thread group
// leaders, so this works for per-thread state entries too.
func ThreadAlive(tid uint32) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", tid))
	return err == nil
}
