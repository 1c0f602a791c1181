// Package protocol — менеджер протокола обмена между машинами.
//
// Manager — единственный владелец реестра приостановленных вызовов
// (running-method registry) и карты подписок удалённых пиров. Он:
//   - принимает входящие сообщения и маршрутизирует их: известный
//     correlation id → возобновление приостановленного scope'а,
//     PROTOCOL → регистрация пиров, иначе — разрешение целевого узла
//     и диспетчеризация на переменную или метод;
//   - превращает сообщения, испущенные графами, в исходящий трафик;
//   - обрабатывает уведомления о записи переменных: подписчик со
//     scope id возобновляется, подписчик-пир получает UPDATE;
//   - отображает ошибки движка и модели в типизированные коды протокола.
//
// Все мутации реестра проходят под одним мьютексом; движок никогда
// не вызывается с удержанным мьютексом, поэтому синхронные уведомления
// о записи (в том числе порождённые самим возобновлением) не приводят
// к взаимной блокировке.
package protocol
