// Package services maps typed domain calls onto backend endpoints.
//
// Each method only builds an endpoint and payload and decodes the declared
// result shape. Actions return an object; queries (endpoints whose action name
// starts with an underscore) return an array whose first element is the result.
package services

import "github.com/tjfontaine/memories-gateway/internal/core/domain"

// ID is an opaque backend identifier.
type ID = domain.ID

type User struct {
	ID       ID     `json:"_id"`
	Username string `json:"username"`
	URL      string `json:"url,omitempty"` // profile picture
	Bio      string `json:"bio,omitempty"`
}

type Contribution struct {
	User        ID       `json:"user"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
}

type Memory struct {
	MemoryID      ID             `json:"memoryID"`
	Group         ID             `json:"group"`
	Creator       ID             `json:"creator"`
	Title         string         `json:"title"`
	Contributions []Contribution `json:"contributions"`
}

type GroupDetails struct {
	GroupName      string `json:"groupName"`
	Members        []ID   `json:"members"`
	InvitedMembers []ID   `json:"invitedMembers"`
}

// Empty is the result of actions that return no fields.
type Empty struct{}
