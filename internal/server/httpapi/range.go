package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dropvault/dropvault/internal/common"
	"github.com/dropvault/dropvault/internal/server/stream"
)

// parseRangeHeader parses a single "bytes=start-end" range header. An
// omitted end means "to the end of the content". A missing header yields
// (nil, nil): serve the full content. Multi-range requests are not
// supported and fail as unsatisfiable.
func parseRangeHeader(header string) (*stream.ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, fmt.Errorf("%w: unsupported range unit in %q", common.ErrRangeNotSatisfiable, header)
	}
	if strings.Contains(spec, ",") {
		return nil, fmt.Errorf("%w: multiple ranges not supported", common.ErrRangeNotSatisfiable)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || startStr == "" {
		return nil, fmt.Errorf("%w: malformed range %q", common.ErrRangeNotSatisfiable, header)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: malformed range start %q", common.ErrRangeNotSatisfiable, startStr)
	}

	end := int64(-1)
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return nil, fmt.Errorf("%w: malformed range end %q", common.ErrRangeNotSatisfiable, endStr)
		}
		if start > end {
			return nil, fmt.Errorf("%w: range start %d after end %d", common.ErrRangeNotSatisfiable, start, end)
		}
	}

	return &stream.ByteRange{Start: start, End: end}, nil
}
