package platform

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// EnsureRoot verifies the monitor can attach kernel probes and signal
// processes it does not own. Both require root; failing here is fatal,
// there is no degraded mode.
func EnsureRoot() error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("insufficient privileges: attaching kernel probes requires root")
	}
	return nil
}

// getOriginalUser gets the user who invoked sudo
func getOriginalUser() (*user.User, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return nil, fmt.Errorf("SUDO_USER environment variable not found")
	}
	return user.Lookup(sudoUser)
}

// ChownDataDir hands the data directory to the user who invoked sudo, so
// the audit database can be read without root. The monitor itself must
// keep running as root (probe attachment, signaling other users'
// processes), which is why this chowns files instead of dropping
// privileges process-wide.
func ChownDataDir(dataDir string) error {
	u, err := getOriginalUser()
	if err != nil {
		return fmt.Errorf("could not get original user: %v", err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("invalid uid: %v", err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("invalid gid: %v", err)
	}

	return filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chown(path, uid, gid)
	})
}
