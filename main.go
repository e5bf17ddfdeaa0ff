package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/GrainArc/SightMap/config"
	"github.com/GrainArc/SightMap/models"
	"github.com/GrainArc/SightMap/routers"
	"github.com/GrainArc/SightMap/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	dem := flag.String("dem", "", "DEM栅格路径")
	observers := flag.String("observers", "", "观察点图层表名")
	offsets := flag.String("offsets", "", "分号分隔的观察高度列表，如 2;10")
	radius := flag.Float64("radius", 0, "分析外半径")
	refraction := flag.Bool("refraction", false, "是否考虑大气折射")
	merge := flag.Bool("merge", false, "按高度合并各观察点结果")
	flag.Parse()

	models.InitDB()

	// 提供offsets参数时以脚本模式执行一次批量分析后退出
	if *offsets != "" {
		runBatch(*dem, *observers, *offsets, *radius, *refraction, *merge)
		return
	}

	r := gin.Default()
	routers.GDALRouters(r)
	if err := r.Run(config.MainRouter); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}

// runBatch 脚本模式：同步执行一次批量可视域分析
func runBatch(dem, observers, offsets string, radius float64, refraction, merge bool) {
	req := &services.ViewshedRequest{
		DemPath:       dem,
		ObserverTable: observers,
		Offsets:       offsets,
		OuterRadius:   radius,
		Refraction:    refraction,
	}
	offsetList, err := req.Validate()
	if err != nil {
		log.Fatalf("Script failed: %v", err)
	}

	svc := services.NewViewshedService(models.DB)
	taskID := uuid.New().String()
	typeName := "viewshed"
	if merge {
		typeName = "viewshed_merge"
	}
	if err := svc.CreateRecord(taskID, typeName, req); err != nil {
		log.Fatalf("Script failed: %v", err)
	}

	progress := func(p float64, message string) bool {
		fmt.Println(message)
		return true
	}

	if merge {
		err = svc.ExecuteMerged(taskID, req, offsetList, progress)
	} else {
		err = svc.ExecuteIndividual(taskID, req, offsetList, progress)
	}
	if err != nil {
		log.Fatalf("Script failed: %v", err)
	}
	fmt.Println("All viewsheds generated successfully.")
}
