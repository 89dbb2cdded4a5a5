package kiteconnect

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"smart-algo-trade/internal/model"
)

// Instruments downloads the instruments master for one exchange. The dump
// endpoint serves CSV, not JSON, so it bypasses the usual envelope decoding.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.buildURL("market.dump", exchange), nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: instruments dump: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kiteconnect: instruments dump: HTTP %d", resp.StatusCode)
	}
	return parseInstrumentsCSV(resp.Body)
}

// parseInstrumentsCSV reads the Kite dump format. Columns are resolved by
// header name so column reordering upstream does not break parsing.
func parseInstrumentsCSV(r io.Reader) ([]model.Instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: instruments header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("kiteconnect: instruments dump missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var out []model.Instrument
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kiteconnect: instruments row: %w", err)
		}

		token, err := strconv.ParseUint(field(row, "instrument_token"), 10, 32)
		if err != nil {
			continue
		}

		inst := model.Instrument{
			Token:    uint32(token),
			Symbol:   field(row, "tradingsymbol"),
			Exchange: field(row, "exchange"),
			Name:     field(row, "name"),
		}
		if v, err := strconv.Atoi(field(row, "lot_size")); err == nil {
			inst.LotSize = v
		}
		if v, err := strconv.ParseFloat(field(row, "tick_size"), 64); err == nil {
			inst.TickSize = rupeesToPaise(v)
		}
		out = append(out, inst)
	}
	return out, nil
}
