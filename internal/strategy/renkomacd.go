package strategy

import (
	"fmt"
	"time"

	"smart-algo-trade/internal/indicator"
	"smart-algo-trade/internal/model"
	"smart-algo-trade/internal/renko"
)

// renkoMACD is tick-driven: it accumulates Renko bricks from the live feed
// and enters when a directional brick run crosses the threshold with the
// MACD histogram agreeing. The stop trails at the opposite Renko limit.
type renkoMACD struct {
	base
	brickThreshold int64
	fast, slow     int
	signalPeriod   int
	atrPeriod      int
	atrMultiplier  float64

	acc       *renko.Accumulator
	brickSize int64
	macdHist  float64 // latest histogram value, refreshed per candle batch
	macdSet   bool
}

func newRenkoMACD(cfg Config) *renkoMACD {
	return &renkoMACD{
		base:           newBase(cfg),
		brickThreshold: int64(cfg.param("brick_threshold", 2)),
		fast:           int(cfg.param("macd_fast", 12)),
		slow:           int(cfg.param("macd_slow", 26)),
		signalPeriod:   int(cfg.param("macd_signal", 9)),
		atrPeriod:      int(cfg.param("atr_period", 200)),
		atrMultiplier:  cfg.param("atr_multiplier", 1.5),
		acc:            renko.New(),
	}
}

func (s *renkoMACD) Name() string { return "renko_macd" }

// GenerateSignal refreshes the MACD context and sizes the Renko brick from
// long-window ATR; entries themselves come from ProcessTick.
func (s *renkoMACD) GenerateSignal(candles []model.Candle, price int64) *Signal {
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}
	if len(candles) < s.slow+s.signalPeriod {
		return nil
	}

	_, _, hist := indicator.MACD(indicator.Closes(candles), s.fast, s.slow, s.signalPeriod)
	s.macdHist = indicator.Last(hist)
	s.macdSet = true

	// Brick size follows volatility; sized once so accumulation survives
	// later evaluations.
	if s.brickSize == 0 && len(candles) >= s.atrPeriod {
		atr := indicator.Last(indicator.ATR(candles, s.atrPeriod))
		if brick := int64(atr * s.atrMultiplier * 100); brick > 0 {
			s.brickSize = brick
			s.acc.Init(s.cfg.Symbol, brick, price)
		}
	}
	return nil
}

// ProcessTick feeds the accumulator and emits entries on threshold runs.
func (s *renkoMACD) ProcessTick(tick model.Tick) *Signal {
	if tick.Symbol != s.cfg.Symbol {
		return nil
	}
	price := tick.LastPrice
	if sig := s.checkExit(price); sig != nil {
		return s.exitSignal(sig)
	}

	ev := s.acc.Update(s.cfg.Symbol, price)
	if !ev.Formed {
		return nil
	}
	st, ok := s.acc.State(s.cfg.Symbol)
	if !ok {
		return nil
	}

	// Trail the stop at the opposite Renko limit while in a trade.
	if s.pos != nil {
		if s.pos.side == KindBuy && st.LowerLimit > s.pos.stopLoss {
			s.updateStop(st.LowerLimit)
			return &Signal{
				TS: time.Now(), Symbol: s.cfg.Symbol, Kind: KindHold,
				Price: price, StopLoss: st.LowerLimit,
				Reason:     "renko lower limit raised",
				Confidence: 1,
				Metadata:   map[string]string{"action": "update_sl"},
			}
		}
		if s.pos.side == KindSell && st.UpperLimit < s.pos.stopLoss {
			s.updateStop(st.UpperLimit)
			return &Signal{
				TS: time.Now(), Symbol: s.cfg.Symbol, Kind: KindHold,
				Price: price, StopLoss: st.UpperLimit,
				Reason:     "renko upper limit lowered",
				Confidence: 1,
				Metadata:   map[string]string{"action": "update_sl"},
			}
		}
		return nil
	}

	if !s.macdSet || !s.gateOpen() {
		return nil
	}

	count := st.BrickCount
	if count >= s.brickThreshold && s.macdHist > 0 {
		return s.entrySignal(s, KindBuy, price,
			fmt.Sprintf("%d up bricks with positive MACD histogram", count), 0.75)
	}
	if count <= -s.brickThreshold && s.macdHist < 0 {
		return s.entrySignal(s, KindSell, price,
			fmt.Sprintf("%d down bricks with negative MACD histogram", count), 0.75)
	}
	return nil
}

func (s *renkoMACD) StopLoss(entry int64, side string) int64 {
	if st, ok := s.acc.State(s.cfg.Symbol); ok {
		if side == KindBuy {
			return st.LowerLimit
		}
		return st.UpperLimit
	}
	return pctStop(entry, side, 0.01)
}

func (s *renkoMACD) Target(entry int64, side string) int64 {
	// Exits ride the trailing Renko stop.
	return 0
}

func (s *renkoMACD) Status() map[string]interface{} {
	extra := map[string]interface{}{
		"brick_threshold": s.brickThreshold,
		"macd_histogram":  s.macdHist,
	}
	if st, ok := s.acc.State(s.cfg.Symbol); ok {
		extra["brick_count"] = st.BrickCount
		extra["brick_size"] = st.BrickSize
		extra["upper_limit"] = st.UpperLimit
		extra["lower_limit"] = st.LowerLimit
	}
	return s.status(s.Name(), extra)
}
