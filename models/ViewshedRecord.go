package models

import "gorm.io/datatypes"

type ViewshedRecord struct {
	ID            int64          `gorm:"primary_key;autoIncrement"`
	TaskID        string         `gorm:"type:varchar(255);index"`
	DemPath       string         `gorm:"type:varchar(255)"` //输入DEM路径
	ObserverTable string         `gorm:"type:varchar(255)"` //观察点图层表名
	OutputPath    string         `gorm:"type:varchar(255)"` //输出工作空间目录
	Status        int            //任务运行状态 0 运行中 1 执行完成  2 执行失败
	TypeName      string         `gorm:"type:varchar(255)"` //viewshed 单点模式 viewshed_merge 合并模式
	Args          datatypes.JSON `gorm:"type:jsonb"`        //任务输入参数
	Failures      datatypes.JSON `gorm:"type:jsonb"`        //逐项失败记录
}

func (ViewshedRecord) TableName() string {
	return "viewshed_record"
}
