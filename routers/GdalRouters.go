package routers

import (
	"github.com/GrainArc/SightMap/GdalView"
	"github.com/gin-gonic/gin"
)

func GDALRouters(r *gin.Engine) {
	UserController := &GdalView.UserController{}
	mapRouter := r.Group("/gdal")
	{
		// POST用于提交单点模式可视域任务
		mapRouter.POST("/Viewshed/start", UserController.StartViewshed)
		// POST用于提交合并模式可视域任务
		mapRouter.POST("/ViewshedMerge/start", UserController.StartViewshedMerge)
		// GET用于WebSocket连接
		mapRouter.GET("/Viewshed/ws/:taskId", UserController.ViewshedWebSocket)
		// GET用于查询任务状态
		mapRouter.GET("/Viewshed/status/:taskId", UserController.GetViewshedTaskStatus)
		// POST用于分页查询任务记录
		mapRouter.POST("/Viewshed/tasks", UserController.GetViewshedTaskList)
	}
	{
		mapRouter.POST("/Observer/upload", UserController.UploadObservers)
		mapRouter.GET("/Observer/fields", UserController.GetObserverFields)
	}
}
