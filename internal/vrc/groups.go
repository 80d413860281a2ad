package vrc

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// membersPageSize is the API's documented per-page maximum.
const membersPageSize = 100

type groupMember struct {
	UserID string `json:"userId"`
}

type groupInvite struct {
	UserID string `json:"userId"`
}

// Membership is the response of a single-member lookup. The API returns more
// fields; only the ones the daemon acts on are decoded.
type Membership struct {
	UserID      string `json:"userId"`
	GroupID     string `json:"groupId"`
	MemberSince string `json:"joinedAt,omitempty"`
}

// GroupMembers returns the user ids of all members of the group, walking the
// paginated listing to the end.
func (c *Client) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	offset := 0
	for {
		q := url.Values{}
		q.Set("n", strconv.Itoa(membersPageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page []groupMember
		if err := c.do(ctx, http.MethodGet, "/groups/"+groupID+"/members", q, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page {
			ids = append(ids, m.UserID)
		}
		if len(page) < membersPageSize {
			return ids, nil
		}
		offset += membersPageSize
	}
}

// GroupInvites returns the user ids with a pending invite to the group.
// An empty list is the normal answer for a group with no outstanding invites.
func (c *Client) GroupInvites(ctx context.Context, groupID string) ([]string, error) {
	var invites []groupInvite
	if err := c.do(ctx, http.MethodGet, "/groups/"+groupID+"/invites", nil, nil, &invites); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(invites))
	for _, in := range invites {
		ids = append(ids, in.UserID)
	}
	return ids, nil
}

// GroupMember looks up one user's membership.
// A 404 (wrapped ErrNotFound) means the user is not a member — the expected
// answer on the invite path.
func (c *Client) GroupMember(ctx context.Context, groupID, userID string) (*Membership, error) {
	var m Membership
	if err := c.do(ctx, http.MethodGet, "/groups/"+groupID+"/members/"+userID, nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

type createInviteRequest struct {
	UserID string `json:"userId"`
}

// CreateGroupInvite sends a group invite to the user.
func (c *Client) CreateGroupInvite(ctx context.Context, groupID, userID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+groupID+"/invites", nil, createInviteRequest{UserID: userID}, nil)
}
