package rsync

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Stats holds the parts of rsync --stats output worth reporting.
type Stats struct {
	NumFiles             int64
	RegTransferred       int64
	TotalFileSize        int64
	TotalTransferredSize int64
	BytesSent            int64
	BytesReceived        int64
	Elapsed              time.Duration
}

var (
	reNumFiles         = regexp.MustCompile(`^\s*Number of files:\s+([0-9,]+)`)
	reRegTransferred   = regexp.MustCompile(`^\s*Number of regular files transferred:\s+([0-9,]+)`)
	reTotalFileSize    = regexp.MustCompile(`^\s*Total file size:\s+([0-9.,A-Za-z]+)`)
	reTotalTransferred = regexp.MustCompile(`^\s*Total transferred file size:\s+([0-9.,A-Za-z]+)`)
	reBytesSent        = regexp.MustCompile(`^\s*Total bytes sent:\s+([0-9.,A-Za-z]+)`)
	reBytesReceived    = regexp.MustCompile(`^\s*Total bytes received:\s+([0-9.,A-Za-z]+)`)
)

// ParseStats parses rsync --stats output from scanner. Unknown lines are ignored.
func ParseStats(sc *bufio.Scanner) (Stats, error) {
	var s Stats
	fields := []struct {
		re    *regexp.Regexp
		dst   *int64
		parse func(string) int64
	}{
		{reNumFiles, &s.NumFiles, toInt},
		{reRegTransferred, &s.RegTransferred, toInt},
		{reTotalFileSize, &s.TotalFileSize, toBytes},
		{reTotalTransferred, &s.TotalTransferredSize, toBytes},
		{reBytesSent, &s.BytesSent, toBytes},
		{reBytesReceived, &s.BytesReceived, toBytes},
	}
	for sc.Scan() {
		line := sc.Text()
		for _, f := range fields {
			if m := f.re.FindStringSubmatch(line); m != nil {
				*f.dst = f.parse(m[1])
				break
			}
		}
	}
	return s, sc.Err()
}

// Summary is a one-line report.
func (s Stats) Summary() string {
	return fmt.Sprintf("transferred %d of %d files (%s of %s) in %s",
		s.RegTransferred, s.NumFiles, formatBytes(s.TotalTransferredSize), formatBytes(s.TotalFileSize),
		s.Elapsed.Round(time.Second))
}

func toInt(s string) int64 {
	v, _ := strconv.ParseInt(cleanNum(s), 10, 64)
	return v
}

// toBytes converts size strings like "1,234", "2.3K", "1.2MiB" to bytes.
func toBytes(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i < 0 {
		return toInt(s)
	}
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	var shift uint
	switch strings.ToUpper(s[i : i+1]) {
	case "K":
		shift = 10
	case "M":
		shift = 20
	case "G":
		shift = 30
	case "T":
		shift = 40
	}
	return int64(f * float64(uint64(1)<<shift))
}

func cleanNum(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return string(out)
}

func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	exp, value := 0, float64(n)
	for value >= unit && exp < 5 {
		value /= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", value, []string{"KB", "MB", "GB", "TB", "PB"}[exp-1])
}
