package browser

import (
	"errors"
	"strconv"
	"strings"
)

var errBadFormat = errors.New("invalid format")

// parseCoordinate parses 'x,y@WIDTHxHEIGHT': a point on a screenshot image
// together with that image's pixel dimensions.
func parseCoordinate(s string) (x, y, imgW, imgH int, err error) {
	point, dims, ok := strings.Cut(s, "@")
	if !ok {
		return 0, 0, 0, 0, errBadFormat
	}
	x, y, err = parsePair(point, ",")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	imgW, imgH, err = parsePair(dims, "x")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if imgW <= 0 || imgH <= 0 {
		return 0, 0, 0, 0, errBadFormat
	}
	return x, y, imgW, imgH, nil
}

// parseSize parses 'WIDTHxHEIGHT' or 'WIDTH,HEIGHT'.
func parseSize(s string) (w, h int, err error) {
	sep := ","
	if strings.Contains(s, "x") {
		sep = "x"
	}
	w, h, err = parsePair(s, sep)
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, errBadFormat
	}
	return w, h, nil
}

func parsePair(s, sep string) (int, int, error) {
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, errBadFormat
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, errBadFormat
	}
	second, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, errBadFormat
	}
	return first, second, nil
}

// scalePoint maps a point on a screenshot image onto the live viewport.
func scalePoint(x, y, imgW, imgH, vpW, vpH int) (float64, float64) {
	if imgW <= 0 || imgH <= 0 || vpW <= 0 || vpH <= 0 {
		return float64(x), float64(y)
	}
	sx := float64(x) * float64(vpW) / float64(imgW)
	sy := float64(y) * float64(vpH) / float64(imgH)
	return sx, sy
}
