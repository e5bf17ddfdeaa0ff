package GdalView

import (
	"fmt"
	"net/http"

	"github.com/GrainArc/SightMap/methods"
	"github.com/GrainArc/SightMap/models"
	"github.com/GrainArc/SightMap/services"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

// ObserverUploadRequest 观察点图层上传请求
type ObserverUploadRequest struct {
	TableName string                    `json:"table_name" binding:"required"`
	Geojson   geojson.FeatureCollection `json:"geojson"`
}

// UploadObservers 将GeoJSON点要素写入观察点图层表
func (uc *UserController) UploadObservers(c *gin.Context) {
	var req ObserverUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request parameters",
			"error":   err.Error(),
		})
		return
	}
	if len(req.Geojson.Features) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "观察点要素不能为空",
		})
		return
	}

	DB := models.DB
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		id bigserial PRIMARY KEY,
		name varchar(255),
		geom geometry(Point, 4326)
	)`, req.TableName)
	if err := DB.Exec(createSQL).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": fmt.Sprintf("创建图层表失败: %v", err),
		})
		return
	}

	inserted := 0
	skipped := 0
	for _, feature := range req.Geojson.Features {
		wkbHex := methods.PointToWKB(*feature)
		if wkbHex == "" {
			// 非点要素跳过
			skipped++
			continue
		}
		name := ""
		if v, ok := feature.Properties["name"].(string); ok {
			name = v
		}
		insertSQL := fmt.Sprintf(`INSERT INTO "%s" (name, geom) VALUES (?, ?)`, req.TableName)
		if err := DB.Exec(insertSQL, name, methods.GeomFromWKBExpr(wkbHex)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": fmt.Sprintf("写入观察点失败: %v", err),
			})
			return
		}
		inserted++
	}

	// 入库后即补齐site_id，后续分析可直接筛选
	observerService := services.NewObserverService(DB)
	if err := observerService.EnsureSiteID(req.TableName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"table_name": req.TableName,
			"inserted":   inserted,
			"skipped":    skipped,
		},
	})
}

// GetObserverFields 获取观察点图层字段列表
func (uc *UserController) GetObserverFields(c *gin.Context) {
	tableName := c.Query("table")
	if tableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "table参数不能为空",
		})
		return
	}

	observerService := services.NewObserverService(models.DB)
	fields, err := observerService.ListFields(tableName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"table_name": tableName,
			"fields":     fields,
		},
	})
}
