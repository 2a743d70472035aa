package domain

import "errors"

var (
	// ErrPermissionDenied: camera/mic access refused. Degrade to off-state.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrDeviceAcquisitionFailed: device busy or unavailable. The toggle reverts.
	ErrDeviceAcquisitionFailed = errors.New("device acquisition failed")
	// ErrRoomInvalid and ErrRoomExpired are fatal to the session and raised before any media is acquired.
	ErrRoomInvalid = errors.New("room invalid")
	ErrRoomExpired = errors.New("room expired")
	// ErrTransport wraps publish/leave failures; local state is left untouched.
	ErrTransport = errors.New("transport error")

	ErrEmptyMessage   = errors.New("empty message")
	ErrNotJoined      = errors.New("not joined")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrUnknownKind    = errors.New("unknown media kind")
	ErrNoSuchDevice   = errors.New("no such device")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnknownSidebar = errors.New("unknown sidebar")
)
