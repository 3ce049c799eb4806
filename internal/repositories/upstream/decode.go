package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
)

// envelope keys under which listings wrap their records
var listKeys = []string{"data", "customers", "contracts", "items", "results"}

var (
	realtimeFields     = lib.NumberFields("realtimeHashrate", "realtime", "currentHashrate")
	pointValueFields   = lib.NumberFields("hashrate", "value")
	unitFields         = lib.StringFields("unit", "hashrateUnit")
	machineCountFields = lib.NumberFields("activeMachines", "machineCount", "totalMachines", "workers", "onlineWorkers")
)

var pointKeys = []string{"data", "points", "chart", "items"}

func decode(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, lib.WrapError(ErrMalformedResponse, err)
	}
	return v, nil
}

// decodeRecords accepts a bare array or an object wrapping the array under one of the
// listKeys, possibly one level deeper. Non-object elements are skipped.
func decodeRecords(body []byte) ([]lib.Fields, error) {
	v, err := decode(body)
	if err != nil {
		return nil, err
	}

	list, ok := findList(v, listKeys, 2)
	if !ok {
		return nil, lib.WrapError(ErrMalformedResponse, fmt.Errorf("no record list in response"))
	}

	records := make([]lib.Fields, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]interface{}); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func findList(v interface{}, keys []string, depth int) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case map[string]interface{}:
		if depth == 0 {
			return nil, false
		}
		for _, key := range keys {
			if inner, ok := t[key]; ok {
				if list, ok := findList(inner, keys, depth-1); ok {
					return list, true
				}
			}
		}
	}
	return nil, false
}

// candidates returns the object itself and its "data" object if any, payloads are
// seen both flat and wrapped
func candidates(v interface{}) []lib.Fields {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	res := []lib.Fields{obj}
	if inner, ok := obj["data"].(map[string]interface{}); ok {
		res = append(res, inner)
	}
	return res
}

// parseRealtimeHashrate reads the current hashrate from a chart payload and converts it
// to PH/s. An explicit realtime field wins over the last chart point.
func parseRealtimeHashrate(body []byte) (float64, error) {
	v, err := decode(body)
	if err != nil {
		return 0, err
	}

	for _, obj := range candidates(v) {
		if value, ok := lib.FirstOf(obj, realtimeFields...); ok {
			return ToPHs(value, lib.FirstOfOr(obj, "", unitFields...))
		}
	}

	var (
		points []interface{}
		unit   string
	)
	if list, ok := v.([]interface{}); ok {
		points = list
	}
	for _, obj := range candidates(v) {
		if unit == "" {
			unit = lib.FirstOfOr(obj, "", unitFields...)
		}
		if points == nil {
			for _, key := range pointKeys {
				if list, ok := obj[key].([]interface{}); ok {
					points = list
					break
				}
			}
		}
	}

	for i := len(points) - 1; i >= 0; i-- {
		point, ok := points[i].(map[string]interface{})
		if !ok {
			continue
		}
		value, ok := lib.FirstOf(point, pointValueFields...)
		if !ok {
			continue
		}
		return ToPHs(value, lib.FirstOfOr(point, unit, unitFields...))
	}

	return 0, lib.WrapError(ErrMalformedResponse, fmt.Errorf("no hashrate in chart"))
}

func parseMachineCount(body []byte) (int, error) {
	v, err := decode(body)
	if err != nil {
		return 0, err
	}
	for _, obj := range candidates(v) {
		if value, ok := lib.FirstOf(obj, machineCountFields...); ok && value > 0 {
			return int(math.Round(value)), nil
		}
	}
	return 0, lib.WrapError(ErrMalformedResponse, fmt.Errorf("no machine count in statistics"))
}

var unitScale = map[string]float64{
	"":  1e-15,
	"K": 1e-12,
	"M": 1e-9,
	"G": 1e-6,
	"T": 1e-3,
	"P": 1,
	"E": 1e3,
}

// ToPHs converts a hashrate expressed in unit (H/s, TH/s, PH, ...) to PH/s.
// An empty unit means the value already is in PH/s.
func ToPHs(value float64, unit string) (float64, error) {
	u := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(unit), " ", ""))
	if u == "" {
		return value, nil
	}
	u = strings.TrimSuffix(u, "/S")
	u = strings.TrimSuffix(u, "H")

	scale, ok := unitScale[u]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return value * scale, nil
}
