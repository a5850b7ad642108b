package services

import (
	"context"

	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
)

// GroupService covers the Groups backend concept.
type GroupService struct {
	rpc ports.Invoker
}

func NewGroupService(inv ports.Invoker) *GroupService {
	return &GroupService{rpc: inv}
}

func (s *GroupService) Create(ctx context.Context, user ID, name string) (ID, error) {
	res, err := rpc.Action[struct {
		Group ID `json:"group"`
	}](ctx, s.rpc, "/Groups/createGroup", ports.Payload{"user": user, "name": name})
	return res.Group, err
}

func (s *GroupService) ListForUser(ctx context.Context, user ID) ([]ID, error) {
	res, err := rpc.Query[struct {
		Groups []ID `json:"groups"`
	}](ctx, s.rpc, "/Groups/_listGroupsForUser", ports.Payload{"user": user})
	return res.Groups, err
}

func (s *GroupService) ListInvitations(ctx context.Context, user ID) ([]ID, error) {
	res, err := rpc.Query[struct {
		Invitations []ID `json:"invitations"`
	}](ctx, s.rpc, "/Groups/_listInvitationsForUser", ports.Payload{"user": user})
	return res.Invitations, err
}

func (s *GroupService) GetDetails(ctx context.Context, group ID) (GroupDetails, error) {
	return rpc.Query[GroupDetails](ctx, s.rpc, "/Groups/_getGroupDetails", ports.Payload{"groupID": group})
}

func (s *GroupService) Invite(ctx context.Context, user, group, invitee ID) error {
	return s.action(ctx, "/Groups/inviteMember", ports.Payload{"user": user, "group": group, "userToInvite": invitee})
}

func (s *GroupService) Accept(ctx context.Context, user, group ID) error {
	return s.action(ctx, "/Groups/acceptInvitation", ports.Payload{"user": user, "group": group})
}

func (s *GroupService) Decline(ctx context.Context, user, group ID) error {
	return s.action(ctx, "/Groups/declineInvitation", ports.Payload{"user": user, "group": group})
}

func (s *GroupService) Leave(ctx context.Context, user, group ID) error {
	return s.action(ctx, "/Groups/leaveGroup", ports.Payload{"user": user, "group": group})
}

func (s *GroupService) EditName(ctx context.Context, user, group ID, newName string) error {
	return s.action(ctx, "/Groups/editGroupName", ports.Payload{"user": user, "group": group, "new_name": newName})
}

func (s *GroupService) action(ctx context.Context, endpoint string, payload ports.Payload) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, endpoint, payload)
	return err
}
