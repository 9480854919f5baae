package model

import (
	"database/sql"
	"time"
)

// TaskSchedule fires its job on a five field cron expression.
type TaskSchedule struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	JobID          uint         `gorm:"not null" json:"job_id"`
	CronExpression string       `gorm:"type:varchar(100)" json:"cron_expression"`
	NextExecution  sql.NullTime `json:"next_execution"`
	LastExecution  sql.NullTime `json:"last_execution"`
	IsActive       bool         `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`

	Job Job `gorm:"foreignKey:JobID;references:ID" json:"-"`
}

func (TaskSchedule) TableName() string {
	return "task_schedules"
}
