package captions

import (
	"fmt"
	"strconv"
	"strings"

	"corpusd/internal/store"
)

// ParseSRT parses SRT-formatted caption data into raw cues; filtering and
// merging are left to Normalize.
func ParseSRT(data []byte) ([]store.CaptionCue, error) {
	return parseBlocks(string(data))
}

// ParseVTT parses WebVTT-formatted caption data into raw cues. The
// leading "WEBVTT" header and any NOTE blocks are skipped.
func ParseVTT(data []byte) ([]store.CaptionCue, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	if idx := strings.Index(content, "\n\n"); idx != -1 && strings.HasPrefix(content, "WEBVTT") {
		content = content[idx+2:]
	}
	return parseBlocks(content)
}

func parseBlocks(content string) ([]store.CaptionCue, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(strings.TrimSpace(content), "\n\n")

	cues := make([]store.CaptionCue, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "NOTE") {
			continue
		}
		lines := strings.Split(block, "\n")

		timingIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timingIdx = i
				break
			}
		}
		if timingIdx == -1 {
			continue
		}

		start, end, err := parseTimingLine(lines[timingIdx])
		if err != nil {
			continue
		}
		text := strings.TrimSpace(strings.Join(lines[timingIdx+1:], "\n"))
		if text == "" {
			continue
		}
		cues = append(cues, store.CaptionCue{StartSec: start, EndSec: end, Text: text})
	}
	return cues, nil
}

func parseTimingLine(line string) (start, end float64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("captions: malformed timing line %q", line)
	}
	start, err = parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("captions: missing end timestamp")
	}
	end, err = parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp accepts both SRT (comma milliseconds) and VTT (period
// milliseconds, optionally without an hours field) timestamp formats.
func parseTimestamp(value string) (float64, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	hms := strings.Split(value, ":")

	var hours, minutes int
	var secondsField string
	switch len(hms) {
	case 3:
		var err error
		if hours, err = strconv.Atoi(hms[0]); err != nil {
			return 0, fmt.Errorf("captions: invalid timestamp %q: %w", value, err)
		}
		if minutes, err = strconv.Atoi(hms[1]); err != nil {
			return 0, fmt.Errorf("captions: invalid timestamp %q: %w", value, err)
		}
		secondsField = hms[2]
	case 2:
		var err error
		if minutes, err = strconv.Atoi(hms[0]); err != nil {
			return 0, fmt.Errorf("captions: invalid timestamp %q: %w", value, err)
		}
		secondsField = hms[1]
	default:
		return 0, fmt.Errorf("captions: invalid timestamp %q", value)
	}

	seconds, err := strconv.ParseFloat(secondsField, 64)
	if err != nil {
		return 0, fmt.Errorf("captions: invalid seconds in timestamp %q: %w", value, err)
	}

	return float64(hours*3600+minutes*60) + seconds, nil
}
