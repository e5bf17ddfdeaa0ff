package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestEnsureSiteID(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE observer_pts (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO observer_pts (name) VALUES ('A'), ('B'), ('C')`).Error)

	observerService := NewObserverService(db)

	has, err := observerService.HasField("observer_pts", SiteIDField)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, observerService.EnsureSiteID("observer_pts"))

	has, err = observerService.HasField("observer_pts", SiteIDField)
	require.NoError(t, err)
	assert.True(t, has)

	// site_id用源行标识填充
	type row struct {
		ID     int64
		SiteID int64
	}
	var rows []row
	require.NoError(t, db.Raw(`SELECT id, site_id FROM observer_pts ORDER BY id`).Scan(&rows).Error)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, r.ID, r.SiteID)
	}
}

func TestEnsureSiteIDPopulatesOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE observer_pts (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO observer_pts (name) VALUES ('A'), ('B')`).Error)

	observerService := NewObserverService(db)
	require.NoError(t, observerService.EnsureSiteID("observer_pts"))

	// 手工改写的标识不会被再次覆盖
	require.NoError(t, db.Exec(`UPDATE observer_pts SET site_id = 99 WHERE id = 1`).Error)
	require.NoError(t, observerService.EnsureSiteID("observer_pts"))

	var siteID int64
	require.NoError(t, db.Raw(`SELECT site_id FROM observer_pts WHERE id = 1`).Scan(&siteID).Error)
	assert.Equal(t, int64(99), siteID)

	// 新增行在下一次调用时补齐
	require.NoError(t, db.Exec(`INSERT INTO observer_pts (name) VALUES ('D')`).Error)
	require.NoError(t, observerService.EnsureSiteID("observer_pts"))
	require.NoError(t, db.Raw(`SELECT site_id FROM observer_pts WHERE name = 'D'`).Scan(&siteID).Error)
	assert.Equal(t, int64(3), siteID)
}

func TestEnsureSiteIDMissingTable(t *testing.T) {
	db := newTestDB(t)
	observerService := NewObserverService(db)
	assert.Error(t, observerService.EnsureSiteID("no_such_table"))
}

func TestListFields(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE observer_pts (ogc_fid INTEGER PRIMARY KEY, name TEXT, geom BLOB)`).Error)

	observerService := NewObserverService(db)
	fields, err := observerService.ListFields("observer_pts")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ogc_fid", "name", "geom"}, fields)
}

func TestRowIDFieldPreference(t *testing.T) {
	assert.Equal(t, "ogc_fid", rowIDField([]string{"name", "ogc_fid", "id"}))
	assert.Equal(t, "id", rowIDField([]string{"name", "id"}))
	assert.Equal(t, "OBJECTID", rowIDField([]string{"name", "OBJECTID"}))
	assert.Equal(t, "", rowIDField([]string{"name", "geom"}))
}

func TestGeometryFieldDetection(t *testing.T) {
	assert.Equal(t, "geom", geometryField([]string{"id", "geom"}))
	assert.Equal(t, "shape", geometryField([]string{"id", "shape"}))
	assert.Equal(t, "wkb_geometry", geometryField([]string{"id", "wkb_geometry"}))
	assert.Equal(t, "geom", geometryField([]string{"id"}))
}
