package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{-1, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes), tt.bytes)
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	thisYear := time.Date(now.Year(), 1, 2, 15, 4, 0, 0, time.Local)
	assert.Equal(t, "Jan  2 15:04", formatTime(thisYear))

	longAgo := time.Date(2006, 1, 2, 15, 4, 0, 0, time.Local)
	assert.Equal(t, "Jan  2  2006", formatTime(longAgo))
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printTable(&buf, []string{"NAME", "PATH"}, [][]string{
		{"@logs", "/var/log/app"},
		{"@w", "/var/www"},
	})

	assert.Equal(t, "NAME   PATH\n@logs  /var/log/app\n@w     /var/www\n", buf.String())
}
