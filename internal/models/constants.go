package models

const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

const (
	MutationBookingCreate = "booking:create"
	MutationRoomUpdate    = "room:update"
)

const (
	MetaKeyDeviceID   = "device_id"
	MetaKeyLastSyncTS = "last_sync_ts"
)

const (
	// DefaultPlayers число игроков, подставляемое в запрос создания брони
	DefaultPlayers = 1

	// MinBookingHours / MaxBookingHours границы длительности брони на сервере
	MinBookingHours = 1
	MaxBookingHours = 4

	// DiscoveryCacheTTL время жизни кэша обнаруженной комнаты
	DiscoveryCacheTTL = 30 * 60 // 30 минут в секундах
)
