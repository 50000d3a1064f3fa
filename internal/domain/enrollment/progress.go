package enrollment

import (
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Fallback оборачивает значение для параметра fallback в ComputeProgress.
func Fallback(v int) *int {
	return &v
}

// ModuleProgress - разбивка прогресса по одному модулю.
type ModuleProgress struct {
	ModuleID            string `json:"moduleId"`
	ModuleCompleted     bool   `json:"moduleCompleted"`
	ExercisesCompleted  int    `json:"exercisesCompleted"`
	ExerciseCount       int    `json:"exerciseCount"`
	ActivitiesCompleted int    `json:"activitiesCompleted"`
	ActivityCount       int    `json:"activityCount"`
	HasQuiz             bool   `json:"hasQuiz"`
	QuizPassed          bool   `json:"quizPassed"`
	CompletedItems      int    `json:"completedItems"`
	TotalItems          int    `json:"totalItems"`
}

// IsFullyComplete возвращает true, если выполнены все пункты модуля.
func (m ModuleProgress) IsFullyComplete() bool {
	return m.CompletedItems == m.TotalItems
}

// Breakdown считает прогресс по каждому модулю курса в порядке курса.
// Отметки с индексом за пределами текущего количества элементов игнорируются.
func Breakdown(c *course.Course, e *Enrollment) []ModuleProgress {
	exercises := distinctIndices(len(e.CompletedExercises), func(i int) (string, int) {
		return e.CompletedExercises[i].ModuleID, e.CompletedExercises[i].ExerciseIndex
	})
	activities := distinctIndices(len(e.CompletedActivities), func(i int) (string, int) {
		return e.CompletedActivities[i].ModuleID, e.CompletedActivities[i].ActivityIndex
	})

	out := make([]ModuleProgress, 0, len(c.Modules))
	for i := range c.Modules {
		m := &c.Modules[i]
		mp := ModuleProgress{
			ModuleID:      m.ID,
			ExerciseCount: m.ExerciseCount(),
			ActivityCount: m.ActivityCount(),
			HasQuiz:       m.HasQuiz(),
			TotalItems:    m.ItemCount(),
		}
		if e.IsModuleCompleted(m.ID) {
			mp.ModuleCompleted = true
			mp.CompletedItems++
		}
		mp.ExercisesCompleted = countBelow(exercises[m.ID], mp.ExerciseCount)
		mp.ActivitiesCompleted = countBelow(activities[m.ID], mp.ActivityCount)
		mp.CompletedItems += mp.ExercisesCompleted + mp.ActivitiesCompleted
		if mp.HasQuiz {
			if r, ok := e.QuizResultFor(m.ID); ok && r.Passed {
				mp.QuizPassed = true
				mp.CompletedItems++
			}
		}
		out = append(out, mp)
	}
	return out
}

// CountItems возвращает (выполнено, всего) пунктов по курсу.
func CountItems(c *course.Course, e *Enrollment) (completed, total int) {
	for _, mp := range Breakdown(c, e) {
		completed += mp.CompletedItems
		total += mp.TotalItems
	}
	return completed, total
}

// ComputeProgress возвращает процент выполнения курса 0..100 с округлением
// half-up. Если в курсе нет ни одного пункта, возвращается fallback
// (или 0, если fallback == nil).
func ComputeProgress(c *course.Course, e *Enrollment, fallback *int) int {
	completed, total := CountItems(c, e)
	if total == 0 {
		if fallback == nil {
			return 0
		}
		return int(shared.ClampPercentage(*fallback))
	}
	return shared.PercentageOf(completed, total).Int()
}

// distinctIndices группирует уникальные индексы по модулю.
func distinctIndices(n int, at func(i int) (string, int)) map[string]map[int]struct{} {
	out := make(map[string]map[int]struct{})
	for i := 0; i < n; i++ {
		moduleID, idx := at(i)
		set, ok := out[moduleID]
		if !ok {
			set = make(map[int]struct{})
			out[moduleID] = set
		}
		set[idx] = struct{}{}
	}
	return out
}

// countBelow считает индексы в диапазоне [0, limit).
func countBelow(set map[int]struct{}, limit int) int {
	n := 0
	for idx := range set {
		if idx >= 0 && idx < limit {
			n++
		}
	}
	return n
}
