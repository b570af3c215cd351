package service

import (
	"context"
	"fmt"

	"amap/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateResourceRequest struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
}

type UpdateResourceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Order       *int   `json:"order"`
	Active      *bool  `json:"active"`
}

type ResourceResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
	Active      bool   `json:"active"`
}

// --- Interface ---

// ResourceService manages the protectable-section catalog. The catalog is
// effectively fixed after setup; the code is the stable key everything else
// joins on, so it is immutable once created.
type ResourceService interface {
	ListResources(ctx context.Context) ([]ResourceResponse, error)
	GetResource(ctx context.Context, id string) (*ResourceResponse, error)
	CreateResource(ctx context.Context, req CreateResourceRequest) (*ResourceResponse, error)
	UpdateResource(ctx context.Context, id string, req UpdateResourceRequest) (*ResourceResponse, error)
}

type resourceService struct {
	db *gorm.DB
}

func NewResourceService(db *gorm.DB) ResourceService {
	return &resourceService{db: db}
}

func (s *resourceService) ListResources(ctx context.Context) ([]ResourceResponse, error) {
	var resources []model.Resource
	if err := s.db.WithContext(ctx).Order("sort_order ASC, code ASC").Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch resources: %w", err)
	}

	res := make([]ResourceResponse, 0, len(resources))
	for _, r := range resources {
		res = append(res, toResourceResponse(r))
	}
	return res, nil
}

func (s *resourceService) GetResource(ctx context.Context, id string) (*ResourceResponse, error) {
	resourceID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid resource id: %w", err)
	}

	var resource model.Resource
	if err := s.db.WithContext(ctx).First(&resource, "id = ?", resourceID).Error; err != nil {
		return nil, fmt.Errorf("resource not found: %w", err)
	}

	resp := toResourceResponse(resource)
	return &resp, nil
}

func (s *resourceService) CreateResource(ctx context.Context, req CreateResourceRequest) (*ResourceResponse, error) {
	resource := model.Resource{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Order:       req.Order,
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(&resource).Error; err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	resp := toResourceResponse(resource)
	return &resp, nil
}

func (s *resourceService) UpdateResource(ctx context.Context, id string, req UpdateResourceRequest) (*ResourceResponse, error) {
	resourceID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid resource id: %w", err)
	}

	var resource model.Resource
	if err := s.db.WithContext(ctx).First(&resource, "id = ?", resourceID).Error; err != nil {
		return nil, fmt.Errorf("resource not found: %w", err)
	}

	if req.Name != "" {
		resource.Name = req.Name
	}
	if req.Description != "" {
		resource.Description = req.Description
	}
	if req.Icon != "" {
		resource.Icon = req.Icon
	}
	if req.Order != nil {
		resource.Order = *req.Order
	}
	if req.Active != nil {
		resource.Active = *req.Active
	}

	if err := s.db.WithContext(ctx).Save(&resource).Error; err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}

	resp := toResourceResponse(resource)
	return &resp, nil
}

func toResourceResponse(r model.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          r.ID.String(),
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Icon:        r.Icon,
		Order:       r.Order,
		Active:      r.Active,
	}
}
