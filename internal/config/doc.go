// Package config — загрузка конфигурации узла из YAML-файла
// с переопределением через переменные окружения.
//
// Файл необязателен: без него узел стартует на значениях по умолчанию,
// пригодных для локальной разработки. Переменные окружения имеют
// приоритет над файлом.
package config
