package inspector

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want []model.LogLine
	}{
		{
			name: "stringified sample",
			blob: "['14.03.24 10:00:00 some message\\n15.03.24 11:00:00 PPPoE error: dropped']",
			want: []model.LogLine{"14.03.24 10:00:00 some message", "15.03.24 11:00:00 PPPoE error: dropped"},
		},
		{
			name: "genuine newlines",
			blob: "14.03.24 10:00:00 a\n15.03.24 11:00:00 b",
			want: []model.LogLine{"14.03.24 10:00:00 a", "15.03.24 11:00:00 b"},
		},
		{
			name: "crlf and trailing newline",
			blob: "14.03.24 10:00:00 a\r\n15.03.24 11:00:00 b\r\n",
			want: []model.LogLine{"14.03.24 10:00:00 a", "15.03.24 11:00:00 b"},
		},
		{
			name: "genuine newline wins over literal",
			blob: "14.03.24 10:00:00 path C:\\new\n15.03.24 11:00:00 b",
			want: []model.LogLine{"14.03.24 10:00:00 path C:\\new", "15.03.24 11:00:00 b"},
		},
		{
			name: "single plain line",
			blob: "14.03.24 10:00:00 only",
			want: []model.LogLine{"14.03.24 10:00:00 only"},
		},
		{
			name: "single stringified line",
			blob: "['14.03.24 10:00:00 only']",
			want: []model.LogLine{"14.03.24 10:00:00 only"},
		},
		{
			name: "stringified lines ending in quotes and brackets",
			blob: `['14.03.24 10:00:00 login by user "admin"\n14.03.24 10:01:00 it's 'fine'\n15.03.24 11:00:00 filter list [default]']`,
			want: []model.LogLine{
				`14.03.24 10:00:00 login by user "admin"`,
				`14.03.24 10:01:00 it's 'fine'`,
				`15.03.24 11:00:00 filter list [default]`,
			},
		},
		{
			name: "double-quoted collection",
			blob: `["14.03.24 10:00:00 a\n15.03.24 11:00:00 [b]"]`,
			want: []model.LogLine{"14.03.24 10:00:00 a", "15.03.24 11:00:00 [b]"},
		},
		{
			name: "stringified empty collection",
			blob: "['']",
			want: []model.LogLine{},
		},
		{
			name: "empty",
			blob: "",
			want: []model.LogLine{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.blob)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Split(%q)=%q, want %q", tt.blob, got, tt.want)
			}
		})
	}
}

func TestSplitStringifiedRoundTrip(t *testing.T) {
	tails := []string{
		"'quoted' text",
		`user "admin"`,
		"profile 'guest'",
		"filter list [default]",
		"[bracketed]",
		`"']`,
	}
	for n := 1; n <= 20; n++ {
		var lines []string
		for i := 0; i < n; i++ {
			lines = append(lines, fmt.Sprintf("%02d.03.24 %02d:%02d:00 event %d: DSL ready, %s", i%28+1, i%24, i%60, i, tails[i%len(tails)]))
		}
		blob := "['" + strings.Join(lines, `\n`) + "']"
		got := Split(blob)
		if len(got) != len(lines) {
			t.Fatalf("n=%d: got %d lines, want %d", n, len(got), len(lines))
		}
		for i := range lines {
			if string(got[i]) != lines[i] {
				t.Fatalf("n=%d line %d: got %q, want %q", n, i, got[i], lines[i])
			}
		}
	}
}
