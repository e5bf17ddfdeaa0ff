package methods

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOffsets 解析分号分隔的观察高度列表，如 "2;10"
func ParseOffsets(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("观察高度列表不能为空")
	}
	parts := strings.Split(raw, ";")
	offsets := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		offset, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("无效的观察高度: %s", part)
		}
		offsets = append(offsets, offset)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("观察高度列表不能为空")
	}
	return offsets, nil
}

// VshedName 单观察点输出名 vshed_<site>_<offset>m
func VshedName(siteID int64, offset float64) string {
	return fmt.Sprintf("vshed_%d_%dm", siteID, int(offset))
}

// VshedMergeName 合并模式输出名 vshed_<offset>m
func VshedMergeName(offset float64) string {
	return fmt.Sprintf("vshed_%dm", int(offset))
}

// CurvatureCoefficient 大气折射开启时采用GDAL可见光系数0.85714，否则为1.0
func CurvatureCoefficient(refraction bool) float64 {
	if refraction {
		return 0.85714
	}
	return 1.0
}
