package strategy

import (
	"fmt"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
)

// orb is the opening-range breakout. Each session it freezes the high/low of
// the first rangeMinutes after the open, then trades the first close beyond
// that range.
type orb struct {
	base
	rangeMinutes int
	slPct        float64

	day       time.Time // session the frozen range belongs to
	rangeHigh int64
	rangeLow  int64
	frozen    bool
	fired     bool
}

// sessionDay is midnight IST of the trading day ts belongs to.
func sessionDay(ts time.Time) time.Time {
	ist := ts.In(markethours.IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, markethours.IST)
}

func newORB(cfg Config) *orb {
	return &orb{
		base:         newBase(cfg),
		rangeMinutes: int(cfg.param("range_minutes", 15)),
		slPct:        cfg.param("stop_loss_pct", 0.005),
	}
}

func (s *orb) Name() string { return "orb" }

func (s *orb) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	if len(candles) == 0 {
		return nil
	}

	last := candles[len(candles)-1]
	day := sessionDay(last.Start)
	if !day.Equal(s.day) {
		// New session: rebuild the range from scratch.
		s.day = day
		s.frozen = false
		s.fired = false
		s.rangeHigh = 0
		s.rangeLow = 0
	}

	open := time.Date(day.Year(), day.Month(), day.Day(),
		markethours.OpenHour, markethours.OpenMinute, 0, 0, markethours.IST)
	rangeEnd := open.Add(time.Duration(s.rangeMinutes) * time.Minute)

	if !s.frozen {
		for _, c := range candles {
			start := c.Start.In(markethours.IST)
			if start.Before(open) || !start.Before(rangeEnd) || !sessionDay(c.Start).Equal(day) {
				continue
			}
			if s.rangeHigh == 0 || c.High > s.rangeHigh {
				s.rangeHigh = c.High
			}
			if s.rangeLow == 0 || c.Low < s.rangeLow {
				s.rangeLow = c.Low
			}
		}
		if !last.Start.In(markethours.IST).Before(rangeEnd) && s.rangeHigh > 0 {
			s.frozen = true
		}
	}

	if !s.frozen || s.fired || !s.gateOpen() {
		return nil
	}

	if last.Close > s.rangeHigh {
		s.fired = true
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("close above opening range high %.2f", float64(s.rangeHigh)/100), 0.7)
	}
	if last.Close < s.rangeLow {
		s.fired = true
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("close below opening range low %.2f", float64(s.rangeLow)/100), 0.7)
	}
	return nil
}

func (s *orb) StopLoss(entry int64, side string) int64 {
	// The opposite side of the range is the natural stop.
	if side == KindBuy && s.rangeLow > 0 && s.rangeLow < entry {
		return s.rangeLow
	}
	if side == KindSell && s.rangeHigh > entry {
		return s.rangeHigh
	}
	return pctStop(entry, side, s.slPct)
}

func (s *orb) Target(entry int64, side string) int64 {
	width := s.rangeHigh - s.rangeLow
	if width <= 0 {
		return pctTarget(entry, side, 2*s.slPct)
	}
	if side == KindBuy {
		return entry + width
	}
	return entry - width
}

func (s *orb) Status() map[string]interface{} {
	return s.status(s.Name(), map[string]interface{}{
		"range_minutes": s.rangeMinutes,
		"range_high":    s.rangeHigh,
		"range_low":     s.rangeLow,
		"range_frozen":  s.frozen,
	})
}
