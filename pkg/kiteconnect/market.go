package kiteconnect

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"smart-algo-trade/internal/markethours"
	"smart-algo-trade/internal/model"
)

// candleTimeLayout is the timestamp format in historical responses.
const candleTimeLayout = "2006-01-02T15:04:05-0700"

// LTP fetches last traded prices for "EXCHANGE:SYMBOL" instruments.
// Implements model.PriceOracle; prices are returned in paise.
func (c *Client) LTP(ctx context.Context, instruments []string) (map[string]int64, error) {
	if len(instruments) == 0 {
		return map[string]int64{}, nil
	}
	q := url.Values{}
	for _, inst := range instruments {
		q.Add("i", inst)
	}

	out, err := c.get(ctx, "market.ltp", q)
	if err != nil {
		return nil, err
	}
	data, _ := out["data"].(map[string]interface{})

	prices := make(map[string]int64, len(data))
	for inst, v := range data {
		quote, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if lp, ok := quote["last_price"].(float64); ok {
			prices[inst] = rupeesToPaise(lp)
		}
	}
	return prices, nil
}

// Candles fetches historical OHLCV for one instrument window. Implements
// model.HistoricalSource; the upstream range is inclusive on both ends.
func (c *Client) Candles(ctx context.Context, token uint32, interval string, from, to time.Time) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("from", from.In(markethours.IST).Format("2006-01-02 15:04:05"))
	q.Set("to", to.In(markethours.IST).Format("2006-01-02 15:04:05"))

	out, err := c.get(ctx, "market.history", q, int(token), interval)
	if err != nil {
		return nil, err
	}
	data, _ := out["data"].(map[string]interface{})
	rows, _ := data["candles"].([]interface{})

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]interface{})
		if !ok || len(fields) < 6 {
			continue
		}
		ts, ok := fields[0].(string)
		if !ok {
			continue
		}
		start, err := time.Parse(candleTimeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("kiteconnect: bad candle timestamp %q: %w", ts, err)
		}
		candle := model.Candle{
			Token:  token,
			Start:  start.In(markethours.IST),
			Closed: true,
		}
		prices := [4]*int64{&candle.Open, &candle.High, &candle.Low, &candle.Close}
		for i, dst := range prices {
			v, ok := fields[i+1].(float64)
			if !ok {
				return nil, fmt.Errorf("kiteconnect: bad candle field %d in row %v", i+1, fields)
			}
			*dst = rupeesToPaise(v)
		}
		if vol, ok := fields[5].(float64); ok {
			candle.Volume = int64(vol)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
