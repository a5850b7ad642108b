package services

import (
	"context"

	"github.com/tjfontaine/memories-gateway/internal/core/ports"
	"github.com/tjfontaine/memories-gateway/internal/rpc"
)

// MemoryService covers the MemoryEntries backend concept.
type MemoryService struct {
	rpc ports.Invoker
}

func NewMemoryService(inv ports.Invoker) *MemoryService {
	return &MemoryService{rpc: inv}
}

func (s *MemoryService) Create(ctx context.Context, creator, group ID, title string) (ID, error) {
	res, err := rpc.Action[struct {
		Memory ID `json:"memory"`
	}](ctx, s.rpc, "/MemoryEntries/createMemory", ports.Payload{"creator": creator, "group": group, "title": title})
	return res.Memory, err
}

func (s *MemoryService) ListForGroup(ctx context.Context, group ID) ([]ID, error) {
	res, err := rpc.Query[struct {
		Memories []ID `json:"memories"`
	}](ctx, s.rpc, "/MemoryEntries/_listMemoriesForGroup", ports.Payload{"groupID": group})
	return res.Memories, err
}

func (s *MemoryService) Get(ctx context.Context, memory ID) (Memory, error) {
	res, err := rpc.Query[struct {
		Memory Memory `json:"memory"`
	}](ctx, s.rpc, "/MemoryEntries/_getMemory", ports.Payload{"memoryID": memory})
	return res.Memory, err
}

// AddContribution attaches a description and image URLs to a memory.
// The backend takes the URLs as a single string.
func (s *MemoryService) AddContribution(ctx context.Context, memory, user ID, description, imageURLs string) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, "/MemoryEntries/addContribution", ports.Payload{
		"memory":      memory,
		"user":        user,
		"description": description,
		"imageUrls":   imageURLs,
	})
	return err
}

func (s *MemoryService) EditContribution(ctx context.Context, memory ID, index int, user ID, newDescription string) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, "/MemoryEntries/editContribution", ports.Payload{
		"memory":            memory,
		"contributionIndex": index,
		"user":              user,
		"newDescription":    newDescription,
	})
	return err
}

func (s *MemoryService) EditTitle(ctx context.Context, memory, user ID, newTitle string) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, "/MemoryEntries/editTitle", ports.Payload{
		"memory":   memory,
		"user":     user,
		"newTitle": newTitle,
	})
	return err
}

func (s *MemoryService) Delete(ctx context.Context, memory, creator ID) error {
	_, err := rpc.Action[Empty](ctx, s.rpc, "/MemoryEntries/deleteMemory", ports.Payload{
		"memory":  memory,
		"creator": creator,
	})
	return err
}
