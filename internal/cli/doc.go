// Package cli — команды операторского CLI.
//
// CLI общается с машинами напрямую через RabbitMQ: объявляет себе
// эксклюзивную входящую очередь, публикует запрос адресату и ждёт
// ответа с тем же correlation id. Команды сгруппированы по namespace
// протокола: variable (READ/WRITE), method (INVOKE).
package cli
