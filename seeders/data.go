package seeders

import "repair-desk/internal/dto"

// templatesData - типовые проблемы, которые предлагаются кнопками при приёме заявки.
var templatesData = []dto.CreateTemplateDTO{
	{Title: "Не включается", Description: "Компьютер или ноутбук не включается, не реагирует на кнопку питания"},
	{Title: "Медленно работает", Description: "Компьютер сильно тормозит, долго загружается система и программы"},
	{Title: "Синий экран", Description: "Периодически появляется синий экран (BSOD), компьютер перезагружается"},
	{Title: "Вирусы и реклама", Description: "Подозрение на вирусы: всплывающая реклама, посторонние программы, браузер открывает чужие страницы"},
	{Title: "Установка Windows", Description: "Нужна установка или переустановка Windows с драйверами и базовыми программами"},
	{Title: "Нет интернета", Description: "Не работает интернет или Wi-Fi, компьютер не видит сеть"},
	{Title: "Перегрев и шум", Description: "Ноутбук сильно греется и шумит, требуется чистка от пыли и замена термопасты"},
	{Title: "Разбит экран", Description: "Разбита или не показывает матрица ноутбука, требуется замена экрана"},
	{Title: "Восстановление данных", Description: "Нужно восстановить удалённые файлы или данные с неисправного диска"},
	{Title: "Не работает принтер", Description: "Принтер не печатает или не определяется компьютером"},
}
