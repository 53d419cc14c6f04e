package models

// Request statuses. The set is closed: the queue manager never writes
// anything outside of it.
const (
	StatusInProgress  = "in-progress"
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusPaused      = "paused"
	StatusAuthError   = "authorization-error"
	StatusNetwork     = "network-error"
	StatusExpired     = "expired"
	StatusAnotherTask = "another-task"
)

// Human-readable status messages shown next to each request.
const (
	MsgInProgress       = "Ожидание свободного слота"
	MsgSuccess          = "Заявка перенесена на запрошенное время"
	MsgPaused           = "Обработка приостановлена пользователем"
	MsgAuthLost         = "Авторизация на портале потеряна, ожидание входа"
	MsgServerError      = "Портал временно недоступен, попробуем позже"
	MsgNetworkError     = "Сетевая ошибка при обращении к порталу"
	MsgExpired          = "Запрошенное окно уже прошло"
	MsgCurrentSlotBegan = "Текущий слот уже начался, перенос невозможен"
	MsgAnotherTask      = "Заявка уже перенесена другой задачей"
	MsgSubmitRejected   = "Портал отклонил запрос на перенос"
)

// BadgePriority ranks statuses for the badge aggregator: the first match
// wins. Statuses missing from the list sort before everything in it.
var BadgePriority = []string{
	StatusError,
	StatusAuthError,
	StatusNetwork,
	StatusInProgress,
	StatusAnotherTask,
	StatusExpired,
	StatusPaused,
	StatusSuccess,
}

// BadgeGlyphs maps a status to the short indicator text.
var BadgeGlyphs = map[string]string{
	StatusError:       "ERR",
	StatusAuthError:   "AUTH",
	StatusNetwork:     "NET",
	StatusInProgress:  "RUN",
	StatusAnotherTask: "DUP",
	StatusExpired:     "EXP",
	StatusPaused:      "PAUSE",
	StatusSuccess:     "OK",
}

const (
	// QueueStorageKey ключ, под которым хранится сериализованная очередь
	QueueStorageKey = "retryQueue"

	// UnauthorizedFlagKey ключ флага потери авторизации
	UnauthorizedFlagKey = "unauthorized"

	// NotificationSettingsKey ключ пользовательских настроек уведомлений
	NotificationSettingsKey = "notificationSettings"

	// DefaultIntervalMinMS нижняя граница джиттера между тиками
	DefaultIntervalMinMS = 1000

	// DefaultIntervalMaxMS верхняя граница джиттера между тиками
	DefaultIntervalMaxMS = 5000

	// DefaultBatchSize максимум заявок, обрабатываемых за один тик
	DefaultBatchSize = 10

	// ExpiryGraceSeconds запас после конца окна, в течение которого
	// заявка еще не считается просроченной
	ExpiryGraceSeconds = 61
)
