package config

import (
	"os"
	"os/user"
	"strconv"
)

// HostIdentity is the user the relocated artifacts should belong to.
// When the ingestor runs under sudo (the usual case, since packet capture
// needs privileged sandboxes), this is the invoking user, not root.
type HostIdentity struct {
	Username string
	UID      int
	GID      int
}

// HostIdentityFromEnv resolves the real host identity, honoring
// SUDO_USER/SUDO_UID/SUDO_GID when present.
func HostIdentityFromEnv() HostIdentity {
	id := HostIdentity{
		Username: os.Getenv("SUDO_USER"),
		UID:      os.Getuid(),
		GID:      os.Getgid(),
	}

	if uid, err := strconv.Atoi(os.Getenv("SUDO_UID")); err == nil {
		id.UID = uid
	}
	if gid, err := strconv.Atoi(os.Getenv("SUDO_GID")); err == nil {
		id.GID = gid
	}

	if id.Username == "" {
		id.Username = os.Getenv("USER")
	}
	if id.Username == "" {
		if u, err := user.Current(); err == nil {
			id.Username = u.Username
		} else {
			id.Username = "unknown"
		}
	}

	return id
}
