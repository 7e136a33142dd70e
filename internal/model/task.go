package model

import "time"

// TaskKind はタスクの種類を表す。
type TaskKind string

const (
	TaskVaccination  TaskKind = "vacunacion"
	TaskDeworming    TaskKind = "desparasitacion"
	TaskCheckup      TaskKind = "revision"
	TaskShearing     TaskKind = "esquila"
	TaskBirth        TaskKind = "parto"
	TaskInsemination TaskKind = "inseminacion"
	TaskFeeding      TaskKind = "alimentacion"
	TaskOther        TaskKind = "otra"
)

// ValidTaskKinds は受け付けるタスク種別の一覧。
var ValidTaskKinds = []TaskKind{
	TaskVaccination, TaskDeworming, TaskCheckup, TaskShearing,
	TaskBirth, TaskInsemination, TaskFeeding, TaskOther,
}

// IsValid は定義済みのタスク種別かを返す。
func (k TaskKind) IsValid() bool {
	for _, v := range ValidTaskKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Task は農場の作業予定を表す。
type Task struct {
	ID          string    `json:"id"`
	FarmID      string    `json:"farm_id"`
	Kind        TaskKind  `json:"kind"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date"`
	SheepTag    string    `json:"sheep_tag"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
