package vrc

import (
	"errors"
	"strings"
)

// ErrNoLocation means the user is not currently inside any instance.
var ErrNoLocation = errors.New("user is not in any instance")

// InstanceFromLocation extracts the instance id from a "worldId:instanceId"
// location descriptor.
func InstanceFromLocation(location string) (string, error) {
	loc := strings.TrimSpace(location)
	if loc == "" || loc == "offline" || loc == "private" {
		return "", ErrNoLocation
	}
	_, instance, ok := strings.Cut(loc, ":")
	if !ok || instance == "" {
		return "", errors.New("invalid location format: " + loc)
	}
	return instance, nil
}

// IsGroupInstance reports whether the instance belongs to the given group.
//
// Group instance ids look like:
//   - grp_<groupID>                          (public)
//   - grp_<groupID>~region(...)~nonce(...)   (private)
//
// Both sides are compared with the "grp_" prefix stripped so callers may pass
// the group id in either form.
func IsGroupInstance(instanceID, groupID string) bool {
	if instanceID == "" || groupID == "" {
		return false
	}
	head, _, _ := strings.Cut(instanceID, "~")
	if !strings.HasPrefix(head, "grp_") {
		return false
	}
	return strings.TrimPrefix(head, "grp_") == strings.TrimPrefix(groupID, "grp_")
}
