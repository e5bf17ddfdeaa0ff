package services

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SiteIDField 观察点唯一标识字段
const SiteIDField = "site_id"

// Observer 单个观察点
type Observer struct {
	SiteID int64   `gorm:"column:site_id"`
	X      float64 `gorm:"column:x"`
	Y      float64 `gorm:"column:y"`
}

type ObserverService struct {
	DB *gorm.DB
}

func NewObserverService(db *gorm.DB) *ObserverService {
	return &ObserverService{DB: db}
}

// ListFields 获取图层表的字段列表
func (s *ObserverService) ListFields(tableName string) ([]string, error) {
	rows, err := s.DB.Raw(fmt.Sprintf(`SELECT * FROM "%s" LIMIT 0`, tableName)).Rows()
	if err != nil {
		return nil, fmt.Errorf("读取图层 %s 失败: %w", tableName, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// HasField 检查字段是否存在
func (s *ObserverService) HasField(tableName, fieldName string) (bool, error) {
	fields, err := s.ListFields(tableName)
	if err != nil {
		return false, err
	}
	for _, field := range fields {
		if strings.EqualFold(field, fieldName) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureSiteID 确保观察点图层具有site_id字段，缺失时添加并用源行标识填充一次
func (s *ObserverService) EnsureSiteID(tableName string) error {
	fields, err := s.ListFields(tableName)
	if err != nil {
		return err
	}

	hasSiteID := false
	for _, field := range fields {
		if strings.EqualFold(field, SiteIDField) {
			hasSiteID = true
			break
		}
	}

	if !hasSiteID {
		sql := fmt.Sprintf(`ALTER TABLE "%s" ADD COLUMN %s bigint`, tableName, SiteIDField)
		if err := s.DB.Exec(sql).Error; err != nil {
			return fmt.Errorf("添加%s字段失败: %w", SiteIDField, err)
		}
	}

	idField := rowIDField(fields)
	if idField == "" {
		return fmt.Errorf("图层 %s 缺少行标识字段", tableName)
	}

	// 仅填充尚未赋值的行，重复调用不改变已有标识
	sql := fmt.Sprintf(`UPDATE "%s" SET %s = %s WHERE %s IS NULL`, tableName, SiteIDField, idField, SiteIDField)
	if err := s.DB.Exec(sql).Error; err != nil {
		return fmt.Errorf("填充%s字段失败: %w", SiteIDField, err)
	}
	return nil
}

// rowIDField 从字段列表中选取源行标识
func rowIDField(fields []string) string {
	for _, candidate := range []string{"ogc_fid", "id", "objectid", "gid", "fid"} {
		for _, field := range fields {
			if strings.EqualFold(field, candidate) {
				return field
			}
		}
	}
	return ""
}

// geometryField 从字段列表中选取几何字段
func geometryField(fields []string) string {
	for _, candidate := range []string{"geom", "shape", "wkb_geometry"} {
		for _, field := range fields {
			if strings.EqualFold(field, candidate) {
				return field
			}
		}
	}
	return "geom"
}

// Observers 按site_id顺序列出观察点坐标
func (s *ObserverService) Observers(tableName string) ([]Observer, error) {
	fields, err := s.ListFields(tableName)
	if err != nil {
		return nil, err
	}
	geomField := geometryField(fields)

	var observers []Observer
	sql := fmt.Sprintf(`SELECT %s, ST_X(%s) AS x, ST_Y(%s) AS y FROM "%s" ORDER BY %s`,
		SiteIDField, geomField, geomField, tableName, SiteIDField)
	if err := s.DB.Raw(sql).Scan(&observers).Error; err != nil {
		return nil, fmt.Errorf("读取观察点失败: %w", err)
	}
	if len(observers) == 0 {
		return nil, fmt.Errorf("图层 %s 中没有观察点", tableName)
	}
	return observers, nil
}
