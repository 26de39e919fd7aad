package buffermanager

import "strconv"

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
