package bot

// User-facing texts. The bot speaks Russian.
const (
	textGreeting = "Привет! Я бот-напоминалка. Выберите действие ниже:"

	textHelp = "Команды:\n" +
		"/start - Запуск бота и отображение меню\n" +
		"/help - Помощь\n" +
		"/add - Добавление задачи\n" +
		"/tasks - Показать все задачи\n" +
		"/edit - Редактировать задачу\n" +
		"/delete - Удалить задачу\n\n" +
		"Добавление задачи:\n" +
		"Например:\n" +
		"'/add 2024-12-05 14:30 Купить продукты'\n" +
		"Или через время:\n" +
		"'/add через 30 минут Проверить почту'\n" +
		"Поддерживаемые единицы времени: секунды, минуты, часы, дни, недели, месяцы, годы"

	textAddUsage = "Введите задачу в формате:\n" +
		"'/add <дата> <время> <текст>'\n" +
		"или\n" +
		"'/add через <количество> <единица времени> <текст>'\n\n" +
		"Поддерживаемые единицы времени: секунды, минуты, часы, дни, недели, месяцы, годы"

	textAddNoArgs    = "Пожалуйста, предоставьте детали задачи. Используйте /help для справки."
	textAddTooShort  = "Недостаточно аргументов для создания задачи. Используйте /help для справки."
	textAddBadUnit   = "Ошибка: Неверная единица времени.\nПоддерживаемые единицы: секунды, минуты, часы, дни, недели, месяцы, годы."
	textAddBadDate   = "Неверный формат даты или времени. Используйте YYYY-MM-DD HH:MM."
	textAddFailed    = "Ошибка при добавлении задачи. Попробуйте снова."
	textNoTasks      = "У вас нет задач."
	textDeleteNoArgs = "Пожалуйста, укажите ID задачи для удаления. Используйте /help для справки."
	textIDNotNumber  = "ID задачи должен быть числом."
	textEnterID      = "Введите ID задачи, которую хотите отредактировать:"
	textEnterIDAgain = "ID задачи должен быть числом. Пожалуйста, введите корректный ID:"
	textEnterText    = "Введите новый текст задачи:"
	textEnterDue     = "Введите новую дату и время выполнения задачи (YYYY-MM-DD HH:MM):"
	textEnterDueBad  = "Неверный формат даты или времени. Пожалуйста, введите в формате YYYY-MM-DD HH:MM:"
	textEditCanceled = "Редактирование задачи отменено."
	textEditFailed   = "Произошла ошибка при обновлении задачи. Попробуйте снова."
	textDeletePrompt = "Введите ID задачи, которую хотите удалить:\nИспользуйте команду '/delete <ID>'"
	textDeleteAbort  = "Удаление отменено."

	textUnknownCommand = "Неизвестная команда. Используйте /help для справки."
	textBusy           = "busy, try again"

	btnAdd    = "Добавить задачу"
	btnView   = "Просмотреть задачи"
	btnEdit   = "Редактировать задачу"
	btnDelete = "Удалить задачу"
	btnHelp   = "Помощь"
	btnYes    = "Да"
	btnNo     = "Нет"
)
