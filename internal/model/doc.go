// Package model реализует адресуемое дерево узлов машины.
//
// Дерево состоит из папок, переменных и методов. Узлы адресуются
// путями вида "motor/axis1/position" от корня. Переменные поддерживают
// подписки: после успешной записи синхронно вызывается наблюдатель
// для каждого текущего подписчика. Подписчиком выступает произвольный
// идентификатор — движок composite methods регистрирует id scope'а.
//
// Пакет — граница с остальной системой: движок и протокольный менеджер
// работают с деревом только через Tree, Variable и Method.
package model
