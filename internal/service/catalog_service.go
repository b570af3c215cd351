package service

import (
	"context"
	"fmt"

	"amap/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogService serves the product and order listings the back office
// renders behind the route guard. It is deliberately thin: the storefront
// applications own the commerce flow, this side only reads and updates
// status, and everything interesting about it is the RBAC gating in front.
type CatalogService interface {
	ListProducts(ctx context.Context, page, limit int) ([]model.Product, int64, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListOrders(ctx context.Context, page, limit int) ([]model.Order, int64, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (*model.Order, error)
}

type catalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) CatalogService {
	return &catalogService{db: db}
}

func (s *catalogService) ListProducts(ctx context.Context, page, limit int) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	if err := s.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := s.db.WithContext(ctx).Order("name ASC").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid product id: %w", err)
	}

	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}
	return &product, nil
}

func (s *catalogService) ListOrders(ctx context.Context, page, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	if err := s.db.WithContext(ctx).Model(&model.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := s.db.WithContext(ctx).Preload("Customer").Order("created_at desc").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *catalogService) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid order id: %w", err)
	}

	var order model.Order
	if err := s.db.WithContext(ctx).Preload("Customer").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("order not found: %w", err)
	}
	return &order, nil
}

func (s *catalogService) UpdateOrderStatus(ctx context.Context, id, status string) (*model.Order, error) {
	switch status {
	case model.OrderStatusPending, model.OrderStatusConfirmed, model.OrderStatusDelivered, model.OrderStatusCancelled:
	default:
		return nil, fmt.Errorf("invalid order status '%s'", status)
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	order.Status = status
	if err := s.db.WithContext(ctx).Save(order).Error; err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return order, nil
}
