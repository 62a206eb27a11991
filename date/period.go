package date

import (
	"fmt"
	"time"
)

// Period is a period of the tax calendar.
type Period int

const (
	Monthly Period = iota + 1
	Quarterly
	Yearly
)

func (p Period) String() string {
	switch p {
	case Monthly:
		return "month"
	case Quarterly:
		return "quarter"
	case Yearly:
		return "year"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

// quarter returns the quarter, 1 to 4, that m belongs to.
func quarter(m time.Month) int { return int(m-1)/3 + 1 }
