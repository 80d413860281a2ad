package vrc

import (
	"context"
	"net/http"
)

// User is the authenticated account, as returned by /auth/user.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`

	// Location is "worldId:instanceId" while in a world, "offline" otherwise.
	// Optional: older API responses omit it entirely.
	Location string `json:"location,omitempty"`
}

// CurrentUser returns the account the auth cookie belongs to, including its
// current location descriptor.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by id. Used to refresh the acting user's location
// right before an invite run.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
