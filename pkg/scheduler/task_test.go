package scheduler

import (
	"context"
	"testing"
	"time"
)

func noopTaskFunc(ctx context.Context) error { return nil }

func TestNewCronTask(t *testing.T) {
	tests := []struct {
		name     string
		cronExpr string
		wantErr  bool
	}{
		{
			name:     "六字段表达式 - 每天凌晨2点30分",
			cronExpr: "0 30 2 * * *",
		},
		{
			name:     "六字段表达式 - 每10秒",
			cronExpr: "*/10 * * * * *",
		},
		{
			name:     "非法表达式",
			cronExpr: "not a cron",
			wantErr:  true,
		},
		{
			name:     "字段数不足",
			cronExpr: "* * *",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := NewCronTask(tt.name, tt.cronExpr, TaskExecuteModeLocal, time.Minute, noopTaskFunc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("期望解析失败")
				}
				return
			}
			if err != nil {
				t.Fatalf("创建Cron任务失败: %v", err)
			}
			if task.GetType() != TaskTypeCron {
				t.Errorf("任务类型 = %d, 期望 TaskTypeCron", task.GetType())
			}
			if !task.GetNextTime().After(time.Now().Add(-time.Second)) {
				t.Error("下次执行时间应在当前时间之后")
			}
		})
	}
}

func TestCronTaskUpdateNextTime(t *testing.T) {
	task, err := NewCronTask("每日巡检", "0 30 2 * * *", TaskExecuteModeDistributed, time.Minute, noopTaskFunc)
	if err != nil {
		t.Fatalf("创建Cron任务失败: %v", err)
	}

	current := time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local)
	next := task.UpdateNextTime(current)

	expected := time.Date(2026, 8, 24, 2, 30, 0, 0, time.Local)
	if !next.Equal(expected) {
		t.Errorf("下次执行时间 = %v, 期望 %v", next, expected)
	}
}

func TestIntervalTaskUpdateNextTime(t *testing.T) {
	start := time.Now()
	task := NewIntervalTask("保活", start, 10*time.Second, TaskExecuteModeLocal, time.Second, noopTaskFunc)

	if !task.GetNextTime().Equal(start) {
		t.Errorf("首次执行时间 = %v, 期望 %v", task.GetNextTime(), start)
	}

	current := start.Add(10 * time.Second)
	next := task.UpdateNextTime(current)
	if !next.Equal(current.Add(10 * time.Second)) {
		t.Errorf("下次执行时间 = %v, 期望 %v", next, current.Add(10*time.Second))
	}
}

func TestOnceTaskNextTimeFixed(t *testing.T) {
	executeTime := time.Now().Add(time.Hour)
	task := NewOnceTask("一次性", executeTime, TaskExecuteModeLocal, time.Second, noopTaskFunc)

	// 一次性任务的执行时间不随当前时间变化
	if next := task.UpdateNextTime(time.Now().Add(2 * time.Hour)); !next.Equal(executeTime) {
		t.Errorf("下次执行时间 = %v, 期望 %v", next, executeTime)
	}

	if task.CanExecute(executeTime.Add(-time.Minute)) {
		t.Error("未到执行时间不应可执行")
	}
	if !task.CanExecute(executeTime.Add(time.Minute)) {
		t.Error("已到执行时间应可执行")
	}
}
