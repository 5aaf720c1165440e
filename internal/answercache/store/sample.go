package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/answercache/internal/answercache/biz"
	"github.com/kart-io/answercache/pkg/utils/json"
)

// sampleRow 质量样本的持久化行。特征向量 JSON 编码存储，
// 训练时按特征布局版本过滤。
type sampleRow struct {
	ID        uint      `gorm:"primarykey"`
	Message   string    `gorm:"type:text"`
	Intent    string    `gorm:"index"`
	Features  string    `gorm:"type:text"`
	Label     float64   `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName 指定表名。
func (sampleRow) TableName() string {
	return "quality_samples"
}

// SampleStore SQLite 实现的质量样本存储。只追加，按窗口裁剪。
type SampleStore struct {
	db *gorm.DB
}

// 编译期检查接口实现。
var _ biz.SampleStore = (*SampleStore)(nil)

// NewSampleStore 打开（或创建）SQLite 样本库并迁移表结构。
func NewSampleStore(path string) (*SampleStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sample store: %w", err)
	}

	if err := db.AutoMigrate(&sampleRow{}); err != nil {
		return nil, fmt.Errorf("migrate sample store: %w", err)
	}

	return &SampleStore{db: db}, nil
}

// Append 追加一条样本。
func (s *SampleStore) Append(ctx context.Context, sample *biz.QualitySample) error {
	features, err := json.Marshal(sample.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	row := sampleRow{
		Message:   sample.Message,
		Intent:    sample.Intent,
		Features:  string(features),
		Label:     sample.Label,
		CreatedAt: sample.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	return nil
}

// Recent 返回指定意图自 since 以来的样本，最多 limit 条，新者在前。
func (s *SampleStore) Recent(ctx context.Context, intent string, since time.Time, limit int) ([]biz.QualitySample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Where("intent = ? AND created_at > ?", intent, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query recent samples: %w", err)
	}
	return toSamples(rows), nil
}

// Window 返回自 since 以来的全部样本，最多 limit 条，新者在前。
func (s *SampleStore) Window(ctx context.Context, since time.Time, limit int) ([]biz.QualitySample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Where("created_at > ?", since).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query sample window: %w", err)
	}
	return toSamples(rows), nil
}

// Prune 删除 before 之前的样本，返回删除数。
func (s *SampleStore) Prune(ctx context.Context, before time.Time) (int, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&sampleRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune samples: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Count 返回样本总数。
func (s *SampleStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&sampleRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// Close 关闭底层数据库连接。
func (s *SampleStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toSamples 把持久化行转换为业务样本，特征无法解析的行跳过。
func toSamples(rows []sampleRow) []biz.QualitySample {
	samples := make([]biz.QualitySample, 0, len(rows))
	for i := range rows {
		var features []float64
		if err := json.Unmarshal([]byte(rows[i].Features), &features); err != nil {
			continue
		}
		samples = append(samples, biz.QualitySample{
			Message:   rows[i].Message,
			Intent:    rows[i].Intent,
			Features:  features,
			Label:     rows[i].Label,
			CreatedAt: rows[i].CreatedAt,
		})
	}
	return samples
}
