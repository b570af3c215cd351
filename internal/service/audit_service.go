package service

import (
	"context"
	"log"

	"amap/internal/model"

	"gorm.io/gorm"
)

type AccessLogResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	RoleName     string `json:"role_name"`
	Path         string `json:"path"`
	ResourceCode string `json:"resource_code"`
	Action       string `json:"action"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail"`
	CreatedAt    string `json:"created_at"`
}

// AuditService records authorization denials and serves the access journal.
type AuditService interface {
	RecordDenial(ctx context.Context, entry model.AccessLog)
	GetAccessLogs(ctx context.Context, page, limit int) ([]AccessLogResponse, int64, error)
}

type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditService instance
func NewAuditService(db *gorm.DB) AuditService {
	return &auditService{db: db}
}

// RecordDenial persists one denial row. Best effort: the journal must never
// turn a denial into a server error, so failures are only logged.
func (s *auditService) RecordDenial(ctx context.Context, entry model.AccessLog) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("audit: failed to record denial for %s: %v", entry.Path, err)
	}
}

// GetAccessLogs retrieves strictly paginated denial records with users preloaded
func (s *auditService) GetAccessLogs(ctx context.Context, page, limit int) ([]AccessLogResponse, int64, error) {
	var logs []model.AccessLog
	var total int64

	if err := s.db.WithContext(ctx).Model(&model.AccessLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := s.db.WithContext(ctx).Preload("User").Order("created_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	res := make([]AccessLogResponse, 0, len(logs))
	for _, l := range logs {
		username := ""
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		res = append(res, AccessLogResponse{
			ID:           l.ID.String(),
			UserID:       userID,
			Username:     username,
			RoleName:     l.RoleName,
			Path:         l.Path,
			ResourceCode: l.ResourceCode,
			Action:       l.Action,
			Reason:       l.Reason,
			Detail:       l.Detail,
			CreatedAt:    l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res, total, nil
}
