package policy

// Policy представляет профиль compliance-ограничений
type Policy struct {
	ProfileName    string   `yaml:"profile_name"`
	MaxOrderQty    float64  `yaml:"max_order_qty"`
	MaxPositionQty float64  `yaml:"max_position_qty"`
	AllowedSymbols []string `yaml:"allowed_symbols"` // пусто = все символы
	BlockedSymbols []string `yaml:"blocked_symbols"`
}

// Violation описывает нарушение политики
type Violation struct {
	Type           string // symbol_blocked, symbol_not_allowed, order_size, position_size
	LimitName      string
	LimitValue     float64
	AttemptedValue float64
	Message        string
}
