package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/GrainArc/Gogeo"
	"github.com/GrainArc/SightMap/config"
	"github.com/GrainArc/SightMap/methods"
	"github.com/GrainArc/SightMap/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ViewshedRequest 可视域批量分析请求参数
type ViewshedRequest struct {
	DemPath       string  `json:"dem_path"`
	ObserverTable string  `json:"observer_table"`
	Offsets       string  `json:"offsets" binding:"required"` // 分号分隔的观察高度列表，如 "2;10"
	OuterRadius   float64 `json:"outer_radius"`
	Refraction    bool    `json:"refraction"` // 是否考虑大气折射
}

// ViewshedFailure 单项失败记录
type ViewshedFailure struct {
	SiteID  int64   `json:"site_id,omitempty"`
	Offset  float64 `json:"offset,omitempty"`
	Message string  `json:"message"`
}

// RunParams 单次外部引擎调用参数
type RunParams struct {
	DemPath    string
	OutputPath string
	X          float64
	Y          float64
	Offset     float64
	Radius     float64
	Curvature  float64
}

// Runner 外部可视域引擎
type Runner interface {
	Run(ctx context.Context, params RunParams) error
}

// GDALViewshedRunner 调用gdal_viewshed工具
type GDALViewshedRunner struct {
	Bin string
}

// BuildArgs 构造gdal_viewshed命令行参数
func (r *GDALViewshedRunner) BuildArgs(params RunParams) []string {
	args := []string{
		"-ox", strconv.FormatFloat(params.X, 'f', -1, 64),
		"-oy", strconv.FormatFloat(params.Y, 'f', -1, 64),
		"-oz", strconv.FormatFloat(params.Offset, 'f', -1, 64),
		"-cc", strconv.FormatFloat(params.Curvature, 'f', -1, 64),
		"-f", "GTiff",
	}
	if params.Radius > 0 {
		args = append(args, "-md", strconv.FormatFloat(params.Radius, 'f', -1, 64))
	}
	args = append(args, params.DemPath, params.OutputPath)
	return args
}

func (r *GDALViewshedRunner) Run(ctx context.Context, params RunParams) error {
	cmd := exec.CommandContext(ctx, r.Bin, r.BuildArgs(params)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gdal_viewshed执行失败: %v: %s", err, string(output))
	}
	return nil
}

// ObserverSource 观察点图层访问
type ObserverSource interface {
	EnsureSiteID(tableName string) error
	Observers(tableName string) ([]Observer, error)
}

// ProgressCallback 进度回调，返回false时中止
type ProgressCallback func(progress float64, message string) bool

// ViewshedService 可视域批量分析服务
type ViewshedService struct {
	DB        *gorm.DB
	Runner    Runner
	Source    ObserverSource
	Merger    func(inputs []string, output string) error
	OpenDem   func(path string) error
	Workspace string
	Download  string
}

func NewViewshedService(db *gorm.DB) *ViewshedService {
	return &ViewshedService{
		DB:     db,
		Runner: &GDALViewshedRunner{Bin: config.ViewshedBin},
		Source: NewObserverService(db),
		Merger: func(inputs []string, output string) error {
			options := &Gogeo.MosaicOptions{
				NumThreads: 0, // 自动
			}
			return Gogeo.MosaicFilesToFile(inputs, output, "GTiff", options)
		},
		OpenDem: func(path string) error {
			rd, err := Gogeo.OpenRasterDataset(path, false)
			if err != nil {
				return err
			}
			rd.Close()
			return nil
		},
		Workspace: config.Workspace,
		Download:  config.Download,
	}
}

// Validate 校验顶层输入，分析开始前即失败
func (req *ViewshedRequest) Validate() ([]float64, error) {
	if req.DemPath == "" {
		req.DemPath = config.Dem
	}
	if req.ObserverTable == "" {
		req.ObserverTable = config.ObserverTable
	}
	if req.DemPath == "" {
		return nil, fmt.Errorf("DEM路径不能为空")
	}
	if req.ObserverTable == "" {
		return nil, fmt.Errorf("观察点图层不能为空")
	}
	offsets, err := methods.ParseOffsets(req.Offsets)
	if err != nil {
		return nil, err
	}
	if req.OuterRadius < 0 {
		return nil, fmt.Errorf("分析半径不能为负")
	}
	if _, err := os.Stat(req.DemPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("DEM文件不存在: %s", req.DemPath)
	}
	return offsets, nil
}

// CreateRecord 创建任务记录
func (s *ViewshedService) CreateRecord(taskID, typeName string, req *ViewshedRequest) error {
	argsJSON, _ := json.Marshal(req)
	record := &models.ViewshedRecord{
		TaskID:        taskID,
		DemPath:       req.DemPath,
		ObserverTable: req.ObserverTable,
		OutputPath:    s.Workspace,
		Status:        0, // 运行中
		TypeName:      typeName,
		Args:          datatypes.JSON(argsJSON),
	}
	if err := s.DB.Create(record).Error; err != nil {
		return fmt.Errorf("创建任务记录失败: %w", err)
	}
	return nil
}

// finishRecord 更新任务状态与失败记录
func (s *ViewshedService) finishRecord(taskID string, status int, failures []ViewshedFailure) {
	updates := map[string]interface{}{"status": status}
	if len(failures) > 0 {
		failuresJSON, _ := json.Marshal(failures)
		updates["failures"] = datatypes.JSON(failuresJSON)
	}
	s.DB.Model(&models.ViewshedRecord{}).Where("task_id = ?", taskID).Updates(updates)
}

// prepare 打开DEM校验并整理观察点图层
func (s *ViewshedService) prepare(req *ViewshedRequest) ([]Observer, error) {
	if err := s.OpenDem(req.DemPath); err != nil {
		return nil, fmt.Errorf("打开DEM失败: %w", err)
	}

	if err := s.Source.EnsureSiteID(req.ObserverTable); err != nil {
		return nil, err
	}
	return s.Source.Observers(req.ObserverTable)
}

// ExecuteIndividual 单点模式，每个(观察点,高度)输出一个栅格
func (s *ViewshedService) ExecuteIndividual(taskID string, req *ViewshedRequest, offsets []float64, progress ProgressCallback) (err error) {
	finalStatus := 1 // 默认成功
	var failures []ViewshedFailure
	defer func() {
		if r := recover(); r != nil {
			finalStatus = 2 // 执行失败
			err = fmt.Errorf("任务执行异常: %v", r)
		}
		s.finishRecord(taskID, finalStatus, failures)
	}()

	observers, perr := s.prepare(req)
	if perr != nil {
		finalStatus = 2
		return perr
	}

	// 单项失败只记录，全部失败也不改变任务结论
	_, failures = s.RunIndividual(req, offsets, observers, progress)
	return nil
}

// RunIndividual 逐(观察点,高度)执行分析，单项失败记录后继续
func (s *ViewshedService) RunIndividual(req *ViewshedRequest, offsets []float64, observers []Observer, progress ProgressCallback) (int, []ViewshedFailure) {
	var failures []ViewshedFailure
	curvature := methods.CurvatureCoefficient(req.Refraction)
	total := len(observers) * len(offsets)
	done := 0
	succeeded := 0
	for _, observer := range observers {
		for _, offset := range offsets {
			message := fmt.Sprintf("Calculating viewshed for SiteID %d with observer offset %vm...", observer.SiteID, offset)
			if progress != nil && !progress(float64(done)/float64(total), message) {
				return succeeded, failures
			}
			outputPath := filepath.Join(s.Workspace, methods.VshedName(observer.SiteID, offset)+".tif")
			err := s.Runner.Run(context.Background(), RunParams{
				DemPath:    req.DemPath,
				OutputPath: outputPath,
				X:          observer.X,
				Y:          observer.Y,
				Offset:     offset,
				Radius:     req.OuterRadius,
				Curvature:  curvature,
			})
			done++
			if err != nil {
				log.Printf("Failed to calculate viewshed for SiteID %d at offset %v: %v", observer.SiteID, offset, err)
				failures = append(failures, ViewshedFailure{SiteID: observer.SiteID, Offset: offset, Message: err.Error()})
				continue
			}
			succeeded++
		}
	}

	if progress != nil {
		progress(1.0, "All viewsheds generated")
	}
	return succeeded, failures
}

// ExecuteMerged 合并模式，每个高度输出一个合并栅格
func (s *ViewshedService) ExecuteMerged(taskID string, req *ViewshedRequest, offsets []float64, progress ProgressCallback) (err error) {
	finalStatus := 1
	var failures []ViewshedFailure
	defer func() {
		if r := recover(); r != nil {
			finalStatus = 2
			err = fmt.Errorf("任务执行异常: %v", r)
		}
		s.finishRecord(taskID, finalStatus, failures)
	}()

	observers, perr := s.prepare(req)
	if perr != nil {
		finalStatus = 2
		return perr
	}

	_, failures = s.RunMerged(taskID, req, offsets, observers, progress)
	return nil
}

// RunMerged 逐高度执行分析，各观察点结果镶嵌为单一栅格
func (s *ViewshedService) RunMerged(taskID string, req *ViewshedRequest, offsets []float64, observers []Observer, progress ProgressCallback) (int, []ViewshedFailure) {
	var failures []ViewshedFailure
	tempDir := filepath.Join(s.Download, taskID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return 0, append(failures, ViewshedFailure{Message: fmt.Sprintf("创建临时目录失败: %v", err)})
	}
	defer os.RemoveAll(tempDir)

	curvature := methods.CurvatureCoefficient(req.Refraction)
	succeeded := 0
	for i, offset := range offsets {
		message := fmt.Sprintf("Calculating merged viewshed for observer offset %vm...", offset)
		if progress != nil && !progress(float64(i)/float64(len(offsets)), message) {
			return succeeded, failures
		}

		var inputs []string
		for _, observer := range observers {
			tempPath := filepath.Join(tempDir, methods.VshedName(observer.SiteID, offset)+".tif")
			err := s.Runner.Run(context.Background(), RunParams{
				DemPath:    req.DemPath,
				OutputPath: tempPath,
				X:          observer.X,
				Y:          observer.Y,
				Offset:     offset,
				Radius:     req.OuterRadius,
				Curvature:  curvature,
			})
			if err != nil {
				log.Printf("Failed to calculate viewshed for SiteID %d at offset %v: %v", observer.SiteID, offset, err)
				failures = append(failures, ViewshedFailure{SiteID: observer.SiteID, Offset: offset, Message: err.Error()})
				continue
			}
			inputs = append(inputs, tempPath)
		}

		if len(inputs) == 0 {
			failures = append(failures, ViewshedFailure{Offset: offset, Message: "该高度下所有观察点计算失败"})
			continue
		}

		outputPath := filepath.Join(s.Workspace, methods.VshedMergeName(offset)+".tif")
		if err := s.merge(inputs, outputPath); err != nil {
			log.Printf("Failed to merge viewsheds at offset %v: %v", offset, err)
			failures = append(failures, ViewshedFailure{Offset: offset, Message: err.Error()})
			continue
		}
		succeeded++
	}

	if progress != nil {
		progress(1.0, "All viewsheds generated")
	}
	return succeeded, failures
}

// merge 镶嵌单高度下的各观察点结果
func (s *ViewshedService) merge(inputs []string, output string) error {
	if len(inputs) == 1 {
		// 单个输入流式拷贝到目标名，栅格可能很大
		src, err := os.Open(inputs[0])
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := os.Create(output)
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	}
	return s.Merger(inputs, output)
}

// GetTaskStatus 查询任务状态
func (s *ViewshedService) GetTaskStatus(taskID string) (*models.ViewshedRecord, error) {
	var record models.ViewshedRecord
	if err := s.DB.Where("task_id = ?", taskID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// 分页查询请求参数
type QueryViewshedTasksRequest struct {
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Status   *int   `json:"status"` // 可选，按状态筛选
	TaskID   string `json:"taskId"` // 可选，按任务ID筛选
}

// 分页查询响应数据
type QueryViewshedTasksResponse struct {
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	List     []models.ViewshedRecord `json:"list"`
}

// GetTaskList 分页查询任务记录
func (s *ViewshedService) GetTaskList(page, pageSize int, status *int, taskID string) (*QueryViewshedTasksResponse, error) {
	var total int64
	var records []models.ViewshedRecord
	query := s.DB.Model(&models.ViewshedRecord{})

	// 条件筛选
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if taskID != "" {
		query = query.Where("task_id LIKE ?", "%"+taskID+"%")
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return &QueryViewshedTasksResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		List:     records,
	}, nil
}
