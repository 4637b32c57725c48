package monitor

// Cursor — последний обработанный sequence одного монитора.
// Владеет им ровно один опросчик и мутирует только из своего цикла,
// поэтому синхронизация не нужна. Для дедупликации годится только sequence:
// timestamp/processed_at контролируются извне и могут совпадать или откатываться.
type Cursor struct {
	lastSeen int64
}

func NewCursor(start int64) *Cursor {
	return &Cursor{lastSeen: start}
}

func (c *Cursor) Value() int64 {
	return c.lastSeen
}

// Advance двигает курсор вперед. Движение назад игнорируется: откат
// счетчика в хранилище — операционная авария, а не повод к ре-доставке.
func (c *Cursor) Advance(seq int64) {
	if seq > c.lastSeen {
		c.lastSeen = seq
	}
}
