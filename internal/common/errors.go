// Package common defines sentinel errors shared by the master and shard
// binaries. Callers should match them with errors.Is, and match
// *RemoteCommandFailed with errors.As.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrPortTaken  = errors.New("port already taken on shard")
	ErrShardFull  = errors.New("shard is at capacity")

	// Validation errors.
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserInactive         = errors.New("the user is not active")
	ErrUsernameAndEmailUsed = errors.New("username and email already exists")
	ErrEmailUsed            = errors.New("email already exists")
	ErrUsernameUsed         = errors.New("username already exists")
	ErrDuplicateApplication = errors.New("the user already has an application with that name")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrShardNotFound        = errors.New("shard not found")
	ErrShardExists          = errors.New("shard already exists")
	ErrShardNameUsed        = errors.New("there is already a shard with that name")
	ErrShardHostnameUsed    = errors.New("there is already a shard with that hostname")
	ErrShardIPUsed          = errors.New("there is already a shard with that ip")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanExists           = errors.New("plan already exists")

	// Resource exhaustion.
	ErrNoShardsAvailable  = errors.New("no shards available")
	ErrPortRangeExhausted = errors.New("port range exhausted")

	// Remote / local side effects.
	ErrKeyGeneration = errors.New("deploy key generation failed")
	ErrKeyTransfer   = errors.New("deploy key transfer failed")
	ErrProxyReload   = errors.New("proxy reload failed")

	// Shard agent errors.
	ErrAlreadyExists   = errors.New("directory already exists")
	ErrNotFound        = errors.New("application not found on shard")
	ErrCloneFailed     = errors.New("repository clone failed")
	ErrPullFailed      = errors.New("repository pull failed")
	ErrManifestMissing = errors.New("no package.json found, nothing will be done")
	ErrManifestInvalid = errors.New("package.json is invalid")
	ErrNotConfigured   = errors.New("application has no service unit, run update first")

	// Agent RPC auth errors.
	ErrInvalidToken = errors.New("invalid token")
)

// RemoteCommandFailed reports a shard command that ran but exited non-zero,
// or that could not be delivered to the shard at all (ExitCode -1).
type RemoteCommandFailed struct {
	Host     string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RemoteCommandFailed) Error() string {
	msg := fmt.Sprintf("remote command %q on %s failed", e.Command, e.Host)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteCommandFailed) Unwrap() error {
	return e.Err
}
