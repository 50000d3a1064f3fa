package enrollment

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// NextStatus выводит статус из пересчитанного процента.
//
//	active    --(100)-->  completed
//	completed --(<100)--> active
//	dropped   остаётся dropped
func NextStatus(current Status, percentage int) Status {
	if current == StatusDropped {
		return StatusDropped
	}
	if percentage >= 100 {
		return StatusCompleted
	}
	if current == StatusCompleted {
		return StatusActive
	}
	return current
}

// ApplyProgress сохраняет процент и переводит статус.
// Возвращает true, если статус изменился.
func (e *Enrollment) ApplyProgress(percentage int) bool {
	e.CompletionPercentage = percentage
	next := NextStatus(e.Status, percentage)
	if next == e.Status {
		return false
	}
	e.Status = next
	return true
}
