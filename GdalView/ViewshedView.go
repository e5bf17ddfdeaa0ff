package GdalView

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/GrainArc/SightMap/models"
	"github.com/GrainArc/SightMap/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type UserController struct{}

// ProgressUpdate 进度推送消息
type ProgressUpdate struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Status   string  `json:"status"`
}

// ViewshedTask 可视域分析任务
type ViewshedTask struct {
	TaskID    string                    `json:"task_id"`
	Status    string                    `json:"status"` // pending, running, completed, failed
	Progress  float64                   `json:"progress"`
	Message   string                    `json:"message"`
	TypeName  string                    `json:"type_name"`
	Request   *services.ViewshedRequest `json:"request"`
	StartTime time.Time                 `json:"start_time"`
	EndTime   *time.Time                `json:"end_time,omitempty"`
	Error     string                    `json:"error,omitempty"`

	// 内部使用
	offsets     []float64
	mu          sync.RWMutex
	subscribers map[string]chan ProgressUpdate
}

// ViewshedTaskManager 可视域任务管理器
type ViewshedTaskManager struct {
	tasks map[string]*ViewshedTask
	mu    sync.RWMutex
}

// 全局可视域任务管理器
var viewshedTaskManager = &ViewshedTaskManager{
	tasks: make(map[string]*ViewshedTask),
}

// AddTask 添加任务
func (tm *ViewshedTaskManager) AddTask(task *ViewshedTask) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tasks[task.TaskID] = task
}

// GetTask 获取任务
func (tm *ViewshedTaskManager) GetTask(taskID string) (*ViewshedTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, ok := tm.tasks[taskID]
	return task, ok
}

// RemoveTask 移除任务
func (tm *ViewshedTaskManager) RemoveTask(taskID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.tasks, taskID)
}

// StartViewshed 启动单点模式批量可视域任务
func (uc *UserController) StartViewshed(c *gin.Context) {
	uc.startViewshedTask(c, "viewshed")
}

// StartViewshedMerge 启动合并模式批量可视域任务
func (uc *UserController) StartViewshedMerge(c *gin.Context) {
	uc.startViewshedTask(c, "viewshed_merge")
}

func (uc *UserController) startViewshedTask(c *gin.Context, typeName string) {
	var req services.ViewshedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request parameters",
			"error":   err.Error(),
		})
		return
	}

	// 顶层参数错误在任何分析调用前返回
	offsets, err := req.Validate()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	svc := services.NewViewshedService(models.DB)
	taskID := uuid.New().String()
	if err := svc.CreateRecord(taskID, typeName, &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	task := &ViewshedTask{
		TaskID:      taskID,
		Status:      "pending",
		Progress:    0,
		Message:     "Task created",
		TypeName:    typeName,
		Request:     &req,
		StartTime:   time.Now(),
		offsets:     offsets,
		subscribers: make(map[string]chan ProgressUpdate),
	}
	viewshedTaskManager.AddTask(task)

	// 异步执行可视域任务
	go executeViewshedTask(task, svc)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Viewshed task started successfully",
		"data": gin.H{
			"task_id": taskID,
		},
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要更严格的检查
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ViewshedWebSocket WebSocket连接处理
func (uc *UserController) ViewshedWebSocket(c *gin.Context) {
	taskID := c.Param("taskId")

	// 获取任务
	task, ok := viewshedTaskManager.GetTask(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Task not found",
		})
		return
	}

	// 升级到WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// 注册订阅者
	subscriberID := uuid.New().String()
	progressChan := make(chan ProgressUpdate, 100)

	task.mu.Lock()
	task.subscribers[subscriberID] = progressChan
	task.mu.Unlock()

	// 确保退出时清理订阅
	defer func() {
		task.mu.Lock()
		delete(task.subscribers, subscriberID)
		close(progressChan)
		task.mu.Unlock()
	}()

	// 发送当前状态
	task.mu.RLock()
	currentStatus := ProgressUpdate{
		Progress: task.Progress,
		Message:  task.Message,
		Status:   task.Status,
	}
	task.mu.RUnlock()
	if err := conn.WriteJSON(currentStatus); err != nil {
		log.Printf("Error sending initial status: %v", err)
		return
	}

	// 监听进度更新和客户端消息
	done := make(chan struct{})

	// 读取客户端消息的goroutine（用于检测连接断开）
	go func() {
		defer close(done)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	// 发送进度更新
	for {
		select {
		case update, ok := <-progressChan:
			if !ok {
				return
			}

			if err := conn.WriteJSON(update); err != nil {
				log.Printf("Error sending progress update: %v", err)
				return
			}

			// 任务已完成或失败，发送后关闭连接
			if update.Status == "completed" || update.Status == "failed" {
				time.Sleep(time.Second) // 给客户端一点时间接收消息
				return
			}

		case <-done:
			return
		}
	}
}

// GetViewshedTaskStatus 获取可视域任务状态
func (uc *UserController) GetViewshedTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	task, ok := viewshedTaskManager.GetTask(taskID)
	if !ok {
		// 内存中不存在时回查任务记录
		svc := services.NewViewshedService(models.DB)
		record, err := svc.GetTaskStatus(taskID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Task not found",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    record,
		})
		return
	}

	task.mu.RLock()
	defer task.mu.RUnlock()

	response := gin.H{
		"task_id":    task.TaskID,
		"status":     task.Status,
		"progress":   task.Progress,
		"message":    task.Message,
		"type_name":  task.TypeName,
		"request":    task.Request,
		"start_time": task.StartTime,
	}

	if task.EndTime != nil {
		response["end_time"] = task.EndTime
		duration := task.EndTime.Sub(task.StartTime)
		response["duration"] = duration.String()
	}

	if task.Error != "" {
		response["error"] = task.Error
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// GetViewshedTaskList 分页查询任务记录
func (uc *UserController) GetViewshedTaskList(c *gin.Context) {
	var req services.QueryViewshedTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request parameters",
			"error":   err.Error(),
		})
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	svc := services.NewViewshedService(models.DB)
	resp, err := svc.GetTaskList(req.Page, req.PageSize, req.Status, req.TaskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}

// executeViewshedTask 执行可视域任务
func executeViewshedTask(task *ViewshedTask, svc *services.ViewshedService) {
	updateViewshedTaskStatus(task, "running", 0, "Starting viewshed generation")

	progressCallback := func(progress float64, message string) bool {
		updateViewshedTaskStatus(task, "running", progress, message)
		return true // 继续执行
	}

	var execErr error
	if task.TypeName == "viewshed_merge" {
		execErr = svc.ExecuteMerged(task.TaskID, task.Request, task.offsets, progressCallback)
	} else {
		execErr = svc.ExecuteIndividual(task.TaskID, task.Request, task.offsets, progressCallback)
	}

	endTime := time.Now()
	task.mu.Lock()
	task.EndTime = &endTime
	task.mu.Unlock()

	if execErr != nil {
		task.mu.Lock()
		task.Status = "failed"
		task.Error = execErr.Error()
		task.mu.Unlock()

		broadcastViewshedUpdate(task, ProgressUpdate{
			Progress: task.Progress,
			Message:  fmt.Sprintf("Task failed: %v", execErr),
			Status:   "failed",
		})
		return
	}

	updateViewshedTaskStatus(task, "completed", 1.0, "Viewshed generation completed successfully")
}

// updateViewshedTaskStatus 更新任务状态
func updateViewshedTaskStatus(task *ViewshedTask, status string, progress float64, message string) {
	task.mu.Lock()
	task.Status = status
	task.Progress = progress
	task.Message = message
	task.mu.Unlock()

	// 广播更新
	broadcastViewshedUpdate(task, ProgressUpdate{
		Progress: progress,
		Message:  message,
		Status:   status,
	})
}

// broadcastViewshedUpdate 广播进度更新到所有订阅者
func broadcastViewshedUpdate(task *ViewshedTask, update ProgressUpdate) {
	task.mu.RLock()
	defer task.mu.RUnlock()

	for _, ch := range task.subscribers {
		select {
		case ch <- update:
		default:
			// 通道已满，跳过
		}
	}
}
