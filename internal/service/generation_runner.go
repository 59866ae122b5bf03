package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrGenerationLocked 表示已有生成任务在执行，本次触发被直接拒绝。
var ErrGenerationLocked = errors.New("a generation run is already in progress")

const scheduleCheckInterval = time.Minute

// GenerationRunner 是生成任务的统一入口：负责抢锁、执行、
// 保证锁释放以及在任何结果下都重新计算下一次排期。
type GenerationRunner struct {
	lock      *RunLockService
	schedule  *ScheduleService
	system    *SystemSettingService
	generator *StoryGenerator
	logs      *GenerationLogService
}

// NewGenerationRunner 构造 GenerationRunner。
func NewGenerationRunner(lock *RunLockService, schedule *ScheduleService, system *SystemSettingService, generator *StoryGenerator, logs *GenerationLogService) *GenerationRunner {
	return &GenerationRunner{
		lock:      lock,
		schedule:  schedule,
		system:    system,
		generator: generator,
		logs:      logs,
	}
}

// Run 执行一次完整的生成。force 为 true 时跳过锁检查（仅供后台手动强制触发）。
// 锁被他人持有时立即返回 ErrGenerationLocked，不处理任何提示词，也不改动排期。
func (r *GenerationRunner) Run(ctx context.Context, force bool, currentUserID uint) (GenerationResult, error) {
	if force {
		if err := r.lock.ForceAcquire(); err != nil {
			return GenerationResult{}, fmt.Errorf("force acquire generation lock: %w", err)
		}
	} else {
		acquired, err := r.lock.TryAcquire()
		if err != nil {
			return GenerationResult{}, fmt.Errorf("acquire generation lock: %w", err)
		}
		if !acquired {
			return GenerationResult{}, ErrGenerationLocked
		}
	}

	// 锁必须在任何退出路径上释放，包括 setup 失败
	defer func() {
		if err := r.lock.Release(); err != nil {
			log.Printf("[generation] failed to release lock: %v", err)
		}
	}()

	result, runErr := r.generator.GenerateAll(ctx, currentUserID)

	// 无论本次运行结果如何都要重排下一次，单次失败不能终止自动生成
	r.rescheduleAfterRun()

	return result, runErr
}

func (r *GenerationRunner) rescheduleAfterRun() {
	interval := 0
	if settings, err := r.system.GetSettings(); err != nil {
		log.Printf("[generation] failed to load interval for reschedule: %v", err)
	} else {
		interval = settings.IntervalDays
	}

	if err := r.schedule.ScheduleNext(interval); err != nil {
		log.Printf("[generation] failed to schedule next run: %v", err)
	}
}

// RunLoop 周期性检查持久化排期，到期后触发一次自动生成。
// 进程重启后排期从数据库恢复，无需额外状态。
func (r *GenerationRunner) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(scheduleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := r.schedule.Due()
			if err != nil {
				log.Printf("[generation] schedule check failed: %v", err)
				continue
			}
			if !due {
				continue
			}

			if _, err := r.Run(ctx, false, 0); err != nil {
				if errors.Is(err, ErrGenerationLocked) {
					continue
				}
				// 定时触发没有直接的用户反馈，结果只体现在日志表里
				log.Printf("[generation] scheduled run failed: %v", err)
			}
		}
	}
}
