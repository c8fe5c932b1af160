package srt

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

const bilingualSRT = `1
00:00:00,100 --> 00:00:05,200
right now I'm reading this didion and babits it's great
我现在正在读迪迪恩和巴比特的作品 很棒

2
00:00:05,300 --> 00:00:07,000
it's a really good read
这本书真的很好看

3
00:00:07,266 --> 00:00:09,500
this is my favorite thing ever
`

func TestParse_BilingualBlocks(t *testing.T) {
	res, err := Parse(bilingualSRT, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := []Entry{
		{Start: 0.1, End: 5.2, English: "right now I'm reading this didion and babits it's great", Chinese: "我现在正在读迪迪恩和巴比特的作品 很棒"},
		{Start: 5.3, End: 7.0, English: "it's a really good read", Chinese: "这本书真的很好看"},
		{Start: 7.266, End: 9.5, English: "this is my favorite thing ever"},
	}
	if diff := cmp.Diff(want, res.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
	if res.Blocks != 3 {
		t.Errorf("expected 3 blocks, got %d", res.Blocks)
	}
}

func TestParse_NormalizesLineEndingsAndBOM(t *testing.T) {
	content := "\ufeff1\r\n00:00:01,000 --> 00:00:02,000\r\nHello\r\n\r\n2\r00:00:03.000 --> 00:00:04.500\rWorld\r"
	res, err := Parse(content, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d (warnings: %v)", len(res.Entries), res.Warnings)
	}
	if res.Entries[1].Start != 3 || res.Entries[1].End != 4.5 {
		t.Errorf("expected dot-separated millis to parse, got %+v", res.Entries[1])
	}
}

func TestParse_AppliesOffset(t *testing.T) {
	res, err := Parse("1\n00:00:01,000 --> 00:00:02,000\nHi\n", 2.5)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Entries[0].Start != 3.5 || res.Entries[0].End != 4.5 {
		t.Errorf("expected offset to shift cue, got %+v", res.Entries[0])
	}
}

func TestParse_NegativeOffsetSkipsCue(t *testing.T) {
	res, err := Parse("1\n00:00:01,000 --> 00:00:02,000\nHi\n\n2\n00:00:05,000 --> 00:00:06,000\nThere\n", -1.5)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "block 1") {
		t.Errorf("expected warning for block 1, got %v", res.Warnings)
	}
}

func TestParse_EmptyContent(t *testing.T) {
	for _, input := range []string{"", "   \n\r\n  ", "\ufeff"} {
		_, err := Parse(input, 0)
		if !errors.Is(err, ErrEmpty) {
			t.Errorf("Parse(%q): expected ErrEmpty, got %v", input, err)
		}
	}
}

func TestParse_MalformedBlocksBecomeWarnings(t *testing.T) {
	content := strings.Join([]string{
		"1\n00:00:01,000 --> 00:00:02,000",
		"x\n00:00:03,000 --> 00:00:04,000\nbad sequence",
		"3\n0:00:05,000 -> 00:00:06,000\nbad time",
		"4\n00:00:08,000 --> 00:00:07,000\nbackwards",
		"5\n00:00:09,000 --> 00:00:10,000\nkept",
	}, "\n\n")

	res, err := Parse(content, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].English != "kept" {
		t.Fatalf("expected only the valid cue, got %+v", res.Entries)
	}
	if len(res.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(res.Warnings), res.Warnings)
	}
	for i, prefix := range []string{"block 1:", "block 2:", "block 3:", "block 4:"} {
		if !strings.HasPrefix(res.Warnings[i], prefix) {
			t.Errorf("warning %d: expected prefix %q, got %q", i, prefix, res.Warnings[i])
		}
	}
}

func TestParse_SortsAndReportsOverlap(t *testing.T) {
	content := "2\n00:00:03,000 --> 00:00:05,000\nsecond\n\n1\n00:00:01,000 --> 00:00:03,500\nfirst\n"
	res, err := Parse(content, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Entries[0].English != "first" || res.Entries[1].English != "second" {
		t.Errorf("expected cues sorted by start, got %+v", res.Entries)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "cues 1 and 2 overlap" {
		t.Errorf("expected overlap warning, got %v", res.Warnings)
	}
}

func TestSplitBilingual(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantEnglish string
		wantChinese string
	}{
		{"english only", "Hello there\nGeneral Kenobi", "Hello there\nGeneral Kenobi", ""},
		{"chinese only", "你好", "你好", "你好"},
		{"two lines each", "Good morning\nevery one\n早上好\n各位", "Good morning every one", "早上好各位"},
		{"cjk line with latin name stays chinese", "I like iPhones.\n我喜欢 iPhone。", "I like iPhones.", "我喜欢 iPhone。"},
		{"latin line with place name", "I love Beijing\n我爱北京", "I love Beijing", "我爱北京"},
		{"symbol line goes to both", "Round 2\n第二轮\n3 - 1", "Round 2 3 - 1", "第二轮3 - 1"},
		{"digits stay english", "Chapter 3\n第三章", "Chapter 3", "第三章"},
		{"no letters", "♪ ♪", "♪ ♪", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en, zh := SplitBilingual(tt.text)
			if en != tt.wantEnglish {
				t.Errorf("english: expected %q, got %q", tt.wantEnglish, en)
			}
			if zh != tt.wantChinese {
				t.Errorf("chinese: expected %q, got %q", tt.wantChinese, zh)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00:01,500", 1.5, false},
		{"01:02:03.004", 3723.004, false},
		{"1:02:03,004", 0, true},
		{"00:00:01", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{1.001, "00:00:01,001"},
		{3723.004, "01:02:03,004"},
		{-4, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestDetectEncoding(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("Hello\n你好，世界"))
	if err != nil {
		t.Fatalf("encode gbk: %v", err)
	}
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("Hi"))
	if err != nil {
		t.Fatalf("encode utf-16: %v", err)
	}

	tests := []struct {
		name string
		in   []byte
		want Encoding
	}{
		{"ascii", []byte("plain text"), UTF8},
		{"utf8 bom", append([]byte{0xef, 0xbb, 0xbf}, "x"...), UTF8},
		{"utf8 chinese", []byte("你好"), UTF8},
		{"gbk chinese", gbk, GBK},
		{"utf16le bom", utf16, UTF16LE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEncoding(tt.in); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseBytes_GBKFile(t *testing.T) {
	src := "1\n00:00:01,000 --> 00:00:02,000\nHello\n你好，世界\n"
	gbk, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(src))
	if err != nil {
		t.Fatalf("encode gbk: %v", err)
	}

	res, err := ParseBytes(gbk, 0)
	if err != nil {
		t.Fatalf("parse bytes: %v", err)
	}
	if res.Encoding != GBK {
		t.Errorf("expected gbk encoding, got %s", res.Encoding)
	}
	if len(res.Entries) != 1 || res.Entries[0].Chinese != "你好，世界" {
		t.Errorf("unexpected entries: %+v", res.Entries)
	}
}

func TestDecode_InvalidUTF8IsReplaced(t *testing.T) {
	out, enc, err := Decode([]byte("ok\xffok"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if enc != UTF8 {
		t.Errorf("expected utf-8, got %s", enc)
	}
	if out != "ok\ufffdok" {
		t.Errorf("expected replacement character, got %q", out)
	}
}
