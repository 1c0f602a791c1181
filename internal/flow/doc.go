// Package flow — движок выполнения composite methods.
//
// Включает:
//   - scope.go     — Scope: состояние одного вызова (locals, pc, статус)
//   - node.go      — варианты узлов управляющего графа и их выполнение
//   - remote.go    — машина состояний удалённого выполнения
//   - graph.go     — последовательный исполнитель графа
//   - composite.go — жизненный цикл composite method (start/resume/cancel)
//   - template.go  — подстановка $name и ${name} из locals
//   - compare.go   — операторы условий ожидания
//   - ids.go       — генерация идентификаторов scope'ов и сообщений
//
// Движок кооперативный и пошаговый: ничто внутри не блокируется.
// Узел либо завершает единицу работы синхронно, либо сообщает
// "ещё рано", и вызывающая сторона решает, когда выполнить resume.
// Доступ к одному scope строго однописательный: одновременное
// возобновление одного context id должно быть исключено владельцем
// (протокольным менеджером).
package flow
