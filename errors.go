package vegetables

import "errors"

var (
	// Startup errors. These are fatal: a partially composed task base is
	// never allowed to serve traffic.
	ErrConfigurationFrozen = errors.New("vegetables: configuration is frozen")
	ErrNotComposed         = errors.New("vegetables: task base has not been composed")
	ErrExtensionLoad       = errors.New("vegetables: extension load failed")
	ErrUnresolvedTask      = errors.New("vegetables: schedule references unknown task")
	ErrUnknownLockFactory  = errors.New("vegetables: unknown lock factory")
	ErrNoStore             = errors.New("vegetables: no store configured")

	// Invocation errors.
	ErrUnknownTask          = errors.New("vegetables: task not registered")
	ErrInvocationNotFound   = errors.New("vegetables: invocation not found")
	ErrInvocationExists     = errors.New("vegetables: invocation already exists")
	ErrUnknownMethod        = errors.New("vegetables: method not on composed base")
	ErrSettingNotFound      = errors.New("vegetables: setting not found")

	// Lock signals. ErrBusy is the expected outcome of contention — callers
	// skip or retry, they do not fail. ErrLockLost tells a holder its lock
	// expired or was taken over.
	ErrBusy     = errors.New("vegetables: lock held by another owner")
	ErrLockLost = errors.New("vegetables: lock lost")
)
