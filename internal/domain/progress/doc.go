// Package progress содержит доменную модель игрового прогресса ученика.
//
// Пакет определяет:
//
//   - Таблицу уровней (LevelTable): beginner, intermediate, advanced, expert
//   - Журнал XP (ApplyXP и формулы начисления за истории, практику, цели, достижения)
//   - Трекер серии дней (StreakTracker)
//   - Движок достижений (Engine) со статическим набором правил
//   - Агрегатор прогресса (Summarize) для экрана "обзор"
//   - Интерфейсы репозиториев и единицы работы (UnitOfWork)
//
// # Модель изменения
//
// Все операции работают по схеме "команда → результат": функция получает
// запись прогресса по значению и возвращает новую запись, не изменяя исходную.
// Сохранение новой записи выполняет слой application внутри одной транзакции.
//
//	xp, err := progress.PracticeXP(80, 400) // 65
//	if err != nil {
//	    return err
//	}
//	rec, change, err := progress.ApplyXP(rec, xp)
//	if err != nil {
//	    return err
//	}
//	if change != nil {
//	    // уровень изменился: change.From → change.To
//	}
//
// # Инварианты
//
//  1. rec.Level == LevelFor(rec.TotalXP) после любой операции с XP
//  2. rec.Streak > 0 ⇒ rec.LastActivityDate установлена
//  3. каждое достижение разблокируется не более одного раза
//
// Серия дней считается в календарных днях одной опорной временной зоны,
// которую задаёт StreakTracker.
package progress
