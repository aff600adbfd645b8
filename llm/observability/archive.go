package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// callMetricRecord 是归档表的行结构
type callMetricRecord struct {
	ID           uint      `gorm:"primaryKey"`
	Timestamp    time.Time `gorm:"index"`
	ProviderID   string    `gorm:"size:64;index"`
	ModelID      string    `gorm:"size:128"`
	TokensUsed   int
	LatencyMs    int64
	CostEstimate float64
	Success      bool
	Error        string `gorm:"size:1024"`
}

func (callMetricRecord) TableName() string { return "sf_call_metrics" }

// GormArchive 将裁剪的调用指标写入关系数据库（postgres / mysql / sqlite）。
type GormArchive struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
}

// NewGormArchive 创建归档并自动迁移表结构
func NewGormArchive(db *gorm.DB, logger *zap.Logger) (*GormArchive, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&callMetricRecord{}); err != nil {
		return nil, fmt.Errorf("migrate call metrics archive: %w", err)
	}
	return &GormArchive{
		db:        db,
		batchSize: 500,
		logger:    logger.With(zap.String("component", "metrics_archive")),
	}, nil
}

// Archive 批量写入
func (a *GormArchive) Archive(ctx context.Context, metrics []CallMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	rows := make([]callMetricRecord, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, callMetricRecord{
			Timestamp:    m.Timestamp,
			ProviderID:   m.ProviderID,
			ModelID:      m.ModelID,
			TokensUsed:   m.TokensUsed,
			LatencyMs:    m.LatencyMs,
			CostEstimate: m.CostEstimate,
			Success:      m.Success,
			Error:        m.Error,
		})
	}
	if err := a.db.WithContext(ctx).CreateInBatches(rows, a.batchSize).Error; err != nil {
		return fmt.Errorf("archive call metrics: %w", err)
	}
	a.logger.Debug("archived call metrics", zap.Int("count", len(rows)))
	return nil
}

// Query 按时间升序返回 since 之后的归档记录；limit <= 0 表示不限。
func (a *GormArchive) Query(ctx context.Context, since time.Time, limit int) ([]CallMetric, error) {
	q := a.db.WithContext(ctx).Where("timestamp >= ?", since).Order("timestamp asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []callMetricRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query call metrics archive: %w", err)
	}
	out := make([]CallMetric, 0, len(rows))
	for _, r := range rows {
		out = append(out, CallMetric{
			Timestamp:    r.Timestamp,
			ProviderID:   r.ProviderID,
			ModelID:      r.ModelID,
			TokensUsed:   r.TokensUsed,
			LatencyMs:    r.LatencyMs,
			CostEstimate: r.CostEstimate,
			Success:      r.Success,
			Error:        r.Error,
		})
	}
	return out, nil
}
