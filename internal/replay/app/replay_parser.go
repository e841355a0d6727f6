package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"replay_worker/internal/replay/domain"
	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// 單行 JSONL 的上限
const maxReplayLineBytes = 16 << 20

// ParseReplay reads a JSONL replay into a Timeline. Only structural defects fail;
// individual fields fall back to their defaults.
func ParseReplay(path string, log *logger.LogInfo) (domain.Timeline, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.InvalidReplayFormat("inputPath is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.InvalidReplayFormat("replay input %s not found", path)
		}
		return nil, domain.InvalidReplayFormat("open replay input %s: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLineBytes)

	var (
		timeline   domain.Timeline
		lineNo     int
		outOfOrder bool
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := parseReplayLine(line)
		if err != nil {
			return nil, domain.InvalidReplayFormat("line %d: %v", lineNo, err)
		}
		if n := len(timeline); n > 0 && ev.OffsetMs < timeline[n-1].OffsetMs {
			outOfOrder = true
		}
		timeline = append(timeline, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.InvalidReplayFormat("read replay input: %v", err)
	}
	if len(timeline) == 0 {
		return nil, domain.InvalidReplayFormat("replay has no events")
	}
	if outOfOrder {
		log.Warn("replay offsets are not non-decreasing, frame selection follows file order",
			zap.String("inputPath", path),
			zap.Int("events", len(timeline)),
		)
	}
	return timeline, nil
}

func parseReplayLine(line []byte) (domain.ReplayEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var record map[string]interface{}
	if err := dec.Decode(&record); err != nil {
		return domain.ReplayEvent{}, fmt.Errorf("unparseable record: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.ReplayEvent{}, errors.New("unparseable record: trailing data")
	}
	if record == nil {
		return domain.ReplayEvent{}, errors.New("record is not an object")
	}
	raw, ok := record["snapshot"].(map[string]interface{})
	if !ok {
		return domain.ReplayEvent{}, errors.New("snapshot object missing")
	}

	def := domain.DefaultSnapshot()
	snapshot := domain.Snapshot{
		BallX:        toFloat(raw["ballX"], def.BallX),
		BallY:        toFloat(raw["ballY"], def.BallY),
		LeftPaddleY:  toFloat(raw["leftPaddleY"], def.LeftPaddleY),
		RightPaddleY: toFloat(raw["rightPaddleY"], def.RightPaddleY),
		LeftScore:    int(toInt(raw["leftScore"], 0)),
		RightScore:   int(toInt(raw["rightScore"], 0)),
		TargetScore:  int(toInt(raw["targetScore"], domain.DefaultTargetScore)),
		Finished:     truthy(raw["finished"]),
	}

	offset := toInt(record["offsetMs"], 0)
	if offset < 0 {
		offset = 0
	}
	return domain.ReplayEvent{OffsetMs: offset, Snapshot: snapshot}, nil
}

// toInt numbers truncate toward zero, numeric strings must be integral
func toInt(v interface{}, def int64) int64 {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, err := t.Float64()
		if err != nil || math.IsNaN(f) || math.Abs(f) > 1<<53 {
			return def
		}
		return int64(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return def
		}
		return n
	case bool:
		if t {
			return 1
		}
		return 0
	}
	return def
}

// toFloat non-finite values fall back to def
func toFloat(v interface{}, def float64) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return def
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return def
		}
		f = n
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
