package services

import (
	"encoding/json"
	"testing"

	"github.com/GrainArc/SightMap/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordDB(t *testing.T) *ViewshedService {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.ViewshedRecord{}))
	return &ViewshedService{DB: db, Workspace: t.TempDir()}
}

func TestTaskRecordLifecycle(t *testing.T) {
	svc := newRecordDB(t)

	req := &ViewshedRequest{DemPath: "dem.tif", ObserverTable: "observer_pts", Offsets: "2;10"}
	require.NoError(t, svc.CreateRecord("task-a", "viewshed", req))

	record, err := svc.GetTaskStatus("task-a")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Status)
	assert.Equal(t, "viewshed", record.TypeName)
	assert.Equal(t, "dem.tif", record.DemPath)

	failures := []ViewshedFailure{{SiteID: 1, Offset: 2, Message: "boom"}}
	svc.finishRecord("task-a", 1, failures)

	record, err = svc.GetTaskStatus("task-a")
	require.NoError(t, err)
	assert.Equal(t, 1, record.Status)

	var saved []ViewshedFailure
	require.NoError(t, json.Unmarshal(record.Failures, &saved))
	require.Len(t, saved, 1)
	assert.Equal(t, "boom", saved[0].Message)
}

func TestGetTaskList(t *testing.T) {
	svc := newRecordDB(t)

	req := &ViewshedRequest{DemPath: "dem.tif", ObserverTable: "observer_pts", Offsets: "2"}
	require.NoError(t, svc.CreateRecord("task-1", "viewshed", req))
	require.NoError(t, svc.CreateRecord("task-2", "viewshed_merge", req))
	svc.finishRecord("task-2", 2, nil)

	resp, err := svc.GetTaskList(1, 10, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Total)

	// 按状态筛选
	failed := 2
	resp, err = svc.GetTaskList(1, 10, &failed, "")
	require.NoError(t, err)
	require.Len(t, resp.List, 1)
	assert.Equal(t, "task-2", resp.List[0].TaskID)

	// 按任务ID模糊筛选
	resp, err = svc.GetTaskList(1, 10, nil, "task-1")
	require.NoError(t, err)
	require.Len(t, resp.List, 1)
	assert.Equal(t, "viewshed", resp.List[0].TypeName)
}

func TestGetTaskStatusMissing(t *testing.T) {
	svc := newRecordDB(t)
	_, err := svc.GetTaskStatus("no-such-task")
	assert.Error(t, err)
}
