package service

type emaState struct {
	period int
	alpha  float64
	value  float64
	seeded bool
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

// newWilder: сглаживание Уайлдера, alpha = 1/n.
func newWilder(period int) emaState {
	e := newEMA(period)
	e.alpha = 1.0 / float64(e.period)
	return e
}

func (e *emaState) Update(price float64) {
	if !e.seeded {
		e.value = price
		e.seeded = true
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
}

func (e *emaState) Value() float64 { return e.value }
